package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/dansestudio/internal/payment"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

// ErrOrderNotFound is returned when an order id is unknown.
var ErrOrderNotFound = errors.New("order not found")

// Status values for an enrollment order.
const (
	StatusPending        = "pending"
	StatusPaymentStarted = "payment_started"
	StatusPaymentFailed  = "payment_failed"
)

// OrderLine is the priced snapshot of one student at checkout time.
type OrderLine struct {
	ItemID      string           `json:"itemId"`
	Student     string           `json:"student"`
	Age         int              `json:"age"`
	Courses     []pricing.Course `json:"courses"`
	PackageID   string           `json:"packageId"`
	PackageName string           `json:"packageName"`
	Total       pricing.Money    `json:"total"`
	Discount    pricing.Money    `json:"discount"`
}

// Order is an enrollment submitted for payment.
type Order struct {
	ID              string           `json:"id"`
	CartID          string           `json:"cartId"`
	Customer        payment.Customer `json:"customer"`
	Amount          pricing.Money    `json:"amount"`
	Discount        pricing.Money    `json:"discount"`
	Status          string           `json:"status"`
	Gateway         string           `json:"gateway"`
	ExternalOrderID string           `json:"externalOrderId,omitempty"`
	RedirectURL     string           `json:"redirectUrl,omitempty"`
	FailureReason   string           `json:"failureReason,omitempty"`
	Lines           []OrderLine      `json:"lines"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// ItemIDs returns the cart item ids the order was built from.
func (o Order) ItemIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ItemID)
	}
	return ids
}

// OrderStore persists enrollment orders.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	MarkStarted(ctx context.Context, id, externalID, redirectURL string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
	Get(ctx context.Context, id string) (Order, error)
}

// MemoryOrderStore keeps orders in process memory.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]Order
}

// NewMemoryOrderStore constructs an empty store.
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]Order)}
}

// Create implements OrderStore.
func (m *MemoryOrderStore) Create(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return errors.New("order already exists")
	}
	m.orders[o.ID] = o
	return nil
}

// MarkStarted implements OrderStore.
func (m *MemoryOrderStore) MarkStarted(_ context.Context, id, externalID, redirectURL string, at time.Time) error {
	return m.update(id, func(o *Order) {
		o.Status = StatusPaymentStarted
		o.ExternalOrderID = externalID
		o.RedirectURL = redirectURL
		o.UpdatedAt = at
	})
}

// MarkFailed implements OrderStore.
func (m *MemoryOrderStore) MarkFailed(_ context.Context, id, reason string, at time.Time) error {
	return m.update(id, func(o *Order) {
		o.Status = StatusPaymentFailed
		o.FailureReason = reason
		o.UpdatedAt = at
	})
}

// Get implements OrderStore.
func (m *MemoryOrderStore) Get(_ context.Context, id string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (m *MemoryOrderStore) update(id string, fn func(*Order)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	fn(&o)
	m.orders[id] = o
	return nil
}
