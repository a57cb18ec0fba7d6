package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

// Line is the pricing result for one cart item.
type Line struct {
	ItemID         string              `json:"itemId"`
	Student        string              `json:"student"`
	FamilyEligible bool                `json:"familyEligible"`
	ExpiresAt      time.Time           `json:"expiresAt"`
	Pricing        pricing.Calculation `json:"pricing"`
}

// Summary is a read-only projection of the cart with freshly computed pricing.
type Summary struct {
	ItemCount     int           `json:"itemCount"`
	Total         pricing.Money `json:"total"`
	Discount      pricing.Money `json:"discount"`
	OriginalTotal pricing.Money `json:"originalTotal"`
	Lines         []Line        `json:"lines"`
	Expired       bool          `json:"expired"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty"`
}

// Summary recomputes pricing for every item against the current catalog and
// folds the results into cart totals.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var catalog []pricing.Package
	if s.catalog != nil {
		pkgs, err := s.catalog.Packages(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("load pricing catalog: %w", err)
		}
		catalog = pkgs
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	summary := Summary{ItemCount: len(s.items), Lines: make([]Line, 0, len(s.items))}
	for _, it := range s.items {
		eligible := it.FamilyEligible()
		calc := s.engine.Quote(it.Courses, catalog, eligible)
		expiresAt := it.ExpiresAt(s.ttl)

		summary.Total += calc.Total
		summary.Discount += calc.Discount
		if calc.OriginalPrice != nil {
			summary.OriginalTotal += *calc.OriginalPrice
		} else {
			summary.OriginalTotal += calc.Total
		}
		if now.After(expiresAt) {
			summary.Expired = true
		}
		if summary.ExpiresAt == nil || expiresAt.Before(*summary.ExpiresAt) {
			earliest := expiresAt
			summary.ExpiresAt = &earliest
		}
		summary.Lines = append(summary.Lines, Line{
			ItemID:         it.ID,
			Student:        it.FullName(),
			FamilyEligible: eligible,
			ExpiresAt:      expiresAt,
			Pricing:        calc,
		})
	}
	return summary, nil
}
