package pricing

import (
	"sort"
	"strings"
)

// Package is an externally configured priced bundle.
type Package struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     Money  `json:"price"`
	Discount  *Money `json:"discount,omitempty"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sortOrder"`
}

func (p Package) flatDiscount() Money {
	if p.Discount == nil || *p.Discount < 0 {
		return 0
	}
	return *p.Discount
}

// Matcher resolves which catalog package applies to a course selection.
type Matcher interface {
	Resolve(courses []Course, catalog []Package) (Package, bool)
}

// nameRule matches a package name containing every entry of all and, when any
// is non-empty, at least one entry of any.
type nameRule struct {
	all []string
	any []string
}

func (r nameRule) matches(name string) bool {
	for _, n := range r.all {
		if !strings.Contains(name, n) {
			return false
		}
	}
	if len(r.any) == 0 {
		return len(r.all) > 0
	}
	return containsAny(name, r.any)
}

type nameRules []nameRule

// matches pads the name with spaces so needles can anchor on word edges.
func (rs nameRules) matches(name string) bool {
	name = " " + normalize(name) + " "
	for _, r := range rs {
		if r.matches(name) {
			return true
		}
	}
	return false
}

// countRule binds an inclusive course-count range to package name variants.
// max == 0 means unbounded.
type countRule struct {
	min   int
	max   int
	names nameRules
}

func (r countRule) covers(count int) bool {
	return count >= r.min && (r.max == 0 || count <= r.max)
}

var classWords = []string{"klasse", "kurs", "time", "class"}

var (
	toddlerNames = nameRules{{any: []string{"barnedans", "småbarn", "toddler", "3-6 år", "mini"}}}
	premiumNames = nameRules{{any: []string{"kompani", "company"}}}

	tieredCountRules = []countRule{
		{min: 1, max: 1, names: nameRules{
			{all: []string{"1"}, any: classWords},
			{any: []string{"én klasse", "en klasse", "enkeltklasse", "single"}},
		}},
		{min: 2, max: 2, names: nameRules{
			{all: []string{"2"}, any: classWords},
			{any: []string{"to klasser", "two classes"}},
		}},
		{min: 3, names: nameRules{
			{any: []string{"3+", "3 eller flere", "tre eller flere", "three or more", "3 klasser", "ubegrenset", "alle klasser"}},
		}},
	}

	fuzzyToddlerNames = nameRules{{any: []string{"barn", "toddler", "små"}}}

	fuzzyCountRules = []countRule{
		{min: 1, max: 1, names: nameRules{{any: []string{"1", "en ", "én", "single", "enkel"}}}},
		{min: 2, max: 2, names: nameRules{{any: []string{"2", "to ", "two"}}}},
		{min: 3, names: nameRules{{any: []string{"3", " tre ", " tre-", "flere", "three", "more"}}}},
	}
)

// TieredMatcher resolves packages by course count, bypassing the count tiers
// whenever a toddler course is selected.
type TieredMatcher struct{}

// Resolve implements Matcher.
func (TieredMatcher) Resolve(courses []Course, catalog []Package) (Package, bool) {
	sel := Select(courses)
	active := ActivePackages(catalog)
	if sel.HasToddler {
		return firstMatching(active, toddlerNames, nil)
	}
	if sel.HasPremium {
		if pkg, ok := firstMatching(active, premiumNames, nil); ok {
			return pkg, true
		}
	}
	rule, ok := ruleFor(tieredCountRules, sel.Count)
	if !ok {
		return Package{}, false
	}
	return firstMatching(active, rule.names, isDedicated)
}

// FuzzyMatcher is the legacy matcher with looser name tests and a fallback to
// the first active package with a positive price.
type FuzzyMatcher struct{}

// Resolve implements Matcher.
func (FuzzyMatcher) Resolve(courses []Course, catalog []Package) (Package, bool) {
	sel := Select(courses)
	active := ActivePackages(catalog)
	if sel.Count == 0 {
		return Package{}, false
	}
	if sel.HasToddler {
		if pkg, ok := firstMatching(active, fuzzyToddlerNames, nil); ok {
			return pkg, true
		}
	} else if rule, ok := ruleFor(fuzzyCountRules, sel.Count); ok {
		if pkg, ok := firstMatching(active, rule.names, isFuzzyToddler); ok {
			return pkg, true
		}
	}
	for _, pkg := range active {
		if pkg.Price > 0 {
			return pkg, true
		}
	}
	return Package{}, false
}

// MatcherFor picks the tiered matcher when the catalog carries tiered package
// names and falls back to the fuzzy matcher otherwise.
func MatcherFor(catalog []Package) Matcher {
	for _, pkg := range ActivePackages(catalog) {
		if toddlerNames.matches(pkg.Name) {
			return TieredMatcher{}
		}
		for _, rule := range tieredCountRules {
			if rule.names.matches(pkg.Name) {
				return TieredMatcher{}
			}
		}
	}
	return FuzzyMatcher{}
}

// ActivePackages returns the active packages ordered by their sort hint.
func ActivePackages(catalog []Package) []Package {
	out := make([]Package, 0, len(catalog))
	for _, pkg := range catalog {
		if pkg.Active {
			out = append(out, pkg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}

func ruleFor(rules []countRule, count int) (countRule, bool) {
	for _, r := range rules {
		if r.covers(count) {
			return r, true
		}
	}
	return countRule{}, false
}

func firstMatching(pkgs []Package, names nameRules, skip func(Package) bool) (Package, bool) {
	for _, pkg := range pkgs {
		if skip != nil && skip(pkg) {
			continue
		}
		if names.matches(pkg.Name) {
			return pkg, true
		}
	}
	return Package{}, false
}

func isDedicated(pkg Package) bool {
	return toddlerNames.matches(pkg.Name) || premiumNames.matches(pkg.Name)
}

func isFuzzyToddler(pkg Package) bool {
	return fuzzyToddlerNames.matches(pkg.Name)
}
