package pricing

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/obs"
)

// Calculation is the immutable pricing result for one student.
type Calculation struct {
	Total          Money  `json:"total"`
	OriginalPrice  *Money `json:"originalPrice,omitempty"`
	Discount       Money  `json:"discount"`
	PackageID      string `json:"packageId"`
	PackageName    string `json:"packageName"`
	IsToddler      bool   `json:"isToddler"`
	FamilyDiscount *Money `json:"familyDiscount,omitempty"`
}

// Found reports whether a package was resolved for the calculation.
func (c Calculation) Found() bool { return c.PackageID != "" }

// Engine computes prices from a course selection and a package catalog.
type Engine struct {
	Rates   Rates
	Matcher Matcher
	Logger  zerolog.Logger
}

// NewEngine constructs an engine with the provided rates. Zero rates fall back to DefaultRates.
func NewEngine(rates Rates, logger zerolog.Logger) *Engine {
	if rates.isZero() {
		rates = DefaultRates()
	}
	return &Engine{Rates: rates, Logger: logger}
}

func (e *Engine) rates() Rates {
	if e == nil || e.Rates.isZero() {
		return DefaultRates()
	}
	return e.Rates
}

func (e *Engine) logger() *zerolog.Logger {
	if e == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return &e.Logger
}

// Quote resolves the applicable package from catalog and calculates the price.
func (e *Engine) Quote(courses []Course, catalog []Package, familyEligible bool) Calculation {
	matcher := MatcherFor(catalog)
	if e != nil && e.Matcher != nil {
		matcher = e.Matcher
	}
	pkg, ok := matcher.Resolve(courses, catalog)
	if !ok {
		return e.Calculate(courses, nil, familyEligible)
	}
	return e.Calculate(courses, &pkg, familyEligible)
}

// Calculate prices courses against pkg. The package's flat discount is taken
// first and the family percentage applies to what remains. A nil pkg yields a
// zero-priced placeholder result.
func (e *Engine) Calculate(courses []Course, pkg *Package, familyEligible bool) Calculation {
	sel := Select(courses)
	tier := tierLabel(sel)
	if pkg == nil {
		obs.IncCounterVec(obs.PricingQuotesTotal, string(tier), "package_not_found")
		return Calculation{
			PackageName: fmt.Sprintf("Fant ikke pakke for %d klasser", sel.Count),
			IsToddler:   sel.HasToddler,
		}
	}

	base := pkg.Price
	if base < 0 {
		base = 0
	}
	packageDiscount := pkg.flatDiscount()
	if packageDiscount > base {
		packageDiscount = base
	}
	price := base - packageDiscount

	var family Money
	if familyEligible {
		family = applyBps(price, e.familyRate(sel))
	}

	calc := Calculation{
		Total:       price - family,
		Discount:    packageDiscount + family,
		PackageID:   pkg.ID,
		PackageName: pkg.Name,
		IsToddler:   sel.HasToddler,
	}
	if calc.Discount > 0 {
		original := base
		calc.OriginalPrice = &original
	}
	if family > 0 {
		calc.FamilyDiscount = &family
	}
	obs.IncCounterVec(obs.PricingQuotesTotal, string(tier), "ok")
	return calc
}

// familyRate returns the basis points for an eligible student. Toddler
// selections use a single flat rate; other selections are tiered by course
// count, and a request without courses gets no family discount.
func (e *Engine) familyRate(sel Selection) int64 {
	rates := e.rates()
	if sel.HasToddler {
		return rates.ToddlerBps
	}
	switch sel.Count {
	case 0:
		e.guard("no_courses", sel)
		return 0
	case 1:
		return rates.SingleCourseBps
	default:
		return rates.forCount(sel.Count)
	}
}

func (e *Engine) guard(reason string, sel Selection) {
	obs.IncCounterVec(obs.PricingGuardTotal, reason)
	e.logger().Warn().Str("reason", reason).Int("courses", sel.Count).Msg("family discount downgraded")
}

func tierLabel(sel Selection) Tier {
	switch {
	case sel.HasToddler:
		return TierToddler
	case sel.HasPremium:
		return TierPremium
	default:
		return TierRegular
	}
}
