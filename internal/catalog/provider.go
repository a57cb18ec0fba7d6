package catalog

import (
	"context"
	"errors"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

// ErrUnavailable is returned when the package catalog cannot be loaded.
var ErrUnavailable = errors.New("pricing catalog unavailable")

// Provider supplies the pricing packages offered by the studio.
type Provider interface {
	Packages(ctx context.Context) ([]pricing.Package, error)
}

// StaticProvider serves a fixed package list.
type StaticProvider struct {
	Items []pricing.Package
}

// Packages implements Provider. Only active packages are returned, ordered
// for display.
func (p StaticProvider) Packages(context.Context) ([]pricing.Package, error) {
	return pricing.ActivePackages(p.Items), nil
}

func discount(v pricing.Money) *pricing.Money { return &v }

// DefaultPackages is the seed catalog used when no database is configured.
func DefaultPackages() []pricing.Package {
	return []pricing.Package{
		{ID: "pkg-1-klasse", Name: "1 klasse per uke", Price: 170_000, Active: true, SortOrder: 1},
		{ID: "pkg-2-klasser", Name: "2 klasser per uke", Price: 300_000, Active: true, SortOrder: 2},
		{ID: "pkg-3-pluss", Name: "3+ klasser (ubegrenset)", Price: 390_000, Active: true, SortOrder: 3},
		{ID: "pkg-barnedans", Name: "Barnedans 3-6 år", Price: 120_000, Active: true, SortOrder: 4},
		{ID: "pkg-kompani", Name: "Kompani", Price: 450_000, Discount: discount(25_000), Active: true, SortOrder: 5},
	}
}
