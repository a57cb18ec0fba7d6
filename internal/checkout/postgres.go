package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresOrderStore persists orders in the enrollment_orders table.
type PostgresOrderStore struct {
	Pool *pgxpool.Pool
}

const insertOrder = `
INSERT INTO enrollment_orders
  (id, cart_id, customer_name, customer_email, customer_phone, amount, discount,
   status, gateway, lines, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

const markOrderStarted = `
UPDATE enrollment_orders
SET status = $2, external_order_id = $3, redirect_url = $4, updated_at = $5
WHERE id = $1`

const markOrderFailed = `
UPDATE enrollment_orders
SET status = $2, failure_reason = $3, updated_at = $4
WHERE id = $1`

const selectOrder = `
SELECT id, cart_id, customer_name, customer_email, customer_phone, amount, discount,
       status, gateway, COALESCE(external_order_id, ''), COALESCE(redirect_url, ''),
       COALESCE(failure_reason, ''), lines, created_at, updated_at
FROM enrollment_orders
WHERE id = $1`

// Create implements OrderStore.
func (s PostgresOrderStore) Create(ctx context.Context, o Order) error {
	if s.Pool == nil {
		return errors.New("checkout: database pool not configured")
	}
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encode order lines: %w", err)
	}
	_, err = s.Pool.Exec(ctx, insertOrder,
		o.ID, o.CartID, o.Customer.Name, o.Customer.Email, o.Customer.Phone,
		o.Amount, o.Discount, o.Status, o.Gateway, lines, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// MarkStarted implements OrderStore.
func (s PostgresOrderStore) MarkStarted(ctx context.Context, id, externalID, redirectURL string, at time.Time) error {
	return s.exec(ctx, markOrderStarted, id, StatusPaymentStarted, externalID, redirectURL, at)
}

// MarkFailed implements OrderStore.
func (s PostgresOrderStore) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	return s.exec(ctx, markOrderFailed, id, StatusPaymentFailed, reason, at)
}

// Get implements OrderStore.
func (s PostgresOrderStore) Get(ctx context.Context, id string) (Order, error) {
	if s.Pool == nil {
		return Order{}, errors.New("checkout: database pool not configured")
	}
	var (
		o     Order
		lines []byte
	)
	err := s.Pool.QueryRow(ctx, selectOrder, id).Scan(
		&o.ID, &o.CartID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Phone,
		&o.Amount, &o.Discount, &o.Status, &o.Gateway, &o.ExternalOrderID, &o.RedirectURL,
		&o.FailureReason, &lines, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, fmt.Errorf("load order: %w", err)
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &o.Lines); err != nil {
			return Order{}, fmt.Errorf("decode order lines: %w", err)
		}
	}
	return o, nil
}

func (s PostgresOrderStore) exec(ctx context.Context, sql string, args ...any) error {
	if s.Pool == nil {
		return errors.New("checkout: database pool not configured")
	}
	tag, err := s.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}
