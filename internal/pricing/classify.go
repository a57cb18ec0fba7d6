package pricing

import (
	"regexp"
	"strings"
)

// Tier is the pricing bracket a course falls into.
type Tier string

const (
	// TierToddler covers the youngest age brackets, priced with a flat package.
	TierToddler Tier = "barnedans"
	// TierRegular is the default bracket priced by number of classes.
	TierRegular Tier = "vanlig"
	// TierPremium covers company/ensemble classes.
	TierPremium Tier = "kompani"
)

// Course is a purchasable class offering.
type Course struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AgeRange string `json:"ageRange"`
	Type     string `json:"type"`
}

// toddlerAge matches the young-age labels: 3-4, 3-5, 4-6 and 5-6 with a hyphen,
// en dash or plus separator and an optional unit suffix.
var toddlerAge = regexp.MustCompile(`^(3\s*[-–+]\s*[45]|4\s*[-–+]\s*6|5\s*[-–+]\s*6)\s*(år\.?|years?|yrs?\.?)?$`)

var premiumKeywords = []string{"kompani", "company", "compagnie"}

type classRule struct {
	name  string
	match func(Course) bool
	tier  Tier
}

// classRules is evaluated top to bottom; the first match wins.
var classRules = []classRule{
	{name: "premium-name", match: hasPremiumName, tier: TierPremium},
	{name: "toddler-age", match: hasToddlerAge, tier: TierToddler},
}

// Classify places a course into a pricing tier. Unrecognised age labels fall
// through to TierRegular.
func Classify(c Course) Tier {
	for _, rule := range classRules {
		if rule.match(c) {
			return rule.tier
		}
	}
	return TierRegular
}

func hasPremiumName(c Course) bool {
	return containsAny(normalize(c.Name), premiumKeywords)
}

func hasToddlerAge(c Course) bool {
	label := normalize(c.AgeRange)
	if label == "" {
		return false
	}
	return toddlerAge.MatchString(label)
}

// Selection summarises a student's selected courses for package matching.
type Selection struct {
	Count      int
	HasToddler bool
	HasPremium bool
}

// Select classifies every course in the selection.
func Select(courses []Course) Selection {
	sel := Selection{Count: len(courses)}
	for _, c := range courses {
		switch Classify(c) {
		case TierToddler:
			sel.HasToddler = true
		case TierPremium:
			sel.HasPremium = true
		}
	}
	return sel
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
