package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/dansestudio/internal/pricing"
)

const listActivePackages = `
SELECT id, name, price, discount, active, sort_order
FROM pricing_packages
WHERE active
ORDER BY sort_order, name`

type packageRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Price     int64  `db:"price"`
	Discount  *int64 `db:"discount"`
	Active    bool   `db:"active"`
	SortOrder int32  `db:"sort_order"`
}

// PostgresProvider loads packages from the pricing_packages table.
type PostgresProvider struct {
	Pool *pgxpool.Pool
}

// Packages implements Provider.
func (p PostgresProvider) Packages(ctx context.Context) ([]pricing.Package, error) {
	if p.Pool == nil {
		return nil, errors.New("catalog: database pool not configured")
	}
	rows, err := p.Pool.Query(ctx, listActivePackages)
	if err != nil {
		return nil, fmt.Errorf("query pricing packages: %w", err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToStructByName[packageRow])
	if err != nil {
		return nil, fmt.Errorf("scan pricing packages: %w", err)
	}
	out := make([]pricing.Package, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.toPackage())
	}
	return pricing.ActivePackages(out), nil
}

func (r packageRow) toPackage() pricing.Package {
	pkg := pricing.Package{
		ID:        r.ID,
		Name:      r.Name,
		Price:     r.Price,
		Active:    r.Active,
		SortOrder: int(r.SortOrder),
	}
	if r.Discount != nil {
		d := *r.Discount
		pkg.Discount = &d
	}
	return pkg
}

const upsertPackage = `
INSERT INTO pricing_packages (id, name, price, discount, active, sort_order)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    price = EXCLUDED.price,
    discount = EXCLUDED.discount,
    active = EXCLUDED.active,
    sort_order = EXCLUDED.sort_order,
    updated_at = now()`

// Upsert writes the given packages in one batch, replacing rows with the same id.
func (p PostgresProvider) Upsert(ctx context.Context, pkgs []pricing.Package) error {
	if p.Pool == nil {
		return errors.New("catalog: database pool not configured")
	}
	batch := &pgx.Batch{}
	for _, pkg := range pkgs {
		batch.Queue(upsertPackage, pkg.ID, pkg.Name, pkg.Price, pkg.Discount, pkg.Active, pkg.SortOrder)
	}
	results := p.Pool.SendBatch(ctx, batch)
	for _, pkg := range pkgs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("upsert package %s: %w", pkg.ID, err)
		}
	}
	return results.Close()
}
