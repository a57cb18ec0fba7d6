package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/notify"
	"github.com/noah-isme/dansestudio/internal/obs"
	"github.com/noah-isme/dansestudio/internal/payment"
)

var (
	// ErrInvalidCustomer is returned when the paying guardian's details are incomplete.
	ErrInvalidCustomer = errors.New("invalid customer details")
	// ErrNothingToPay is returned when the cart prices to zero or a package is missing.
	ErrNothingToPay = errors.New("nothing to pay")
)

// Notifier schedules confirmation emails.
type Notifier interface {
	EnqueueConfirmation(ctx context.Context, c notify.Confirmation) error
}

// Result is returned to the caller after a successful checkout.
type Result struct {
	OrderID         string `json:"orderId"`
	Amount          int64  `json:"amount"`
	Discount        int64  `json:"discount"`
	RedirectURL     string `json:"redirectUrl"`
	ExternalOrderID string `json:"externalOrderId"`
}

// Service turns a validated cart into an order and opens a payment for it.
type Service struct {
	Carts    *cart.Registry
	Orders   OrderStore
	Gateway  payment.Gateway
	Notifier Notifier
	Currency string
	Now      func() time.Time
	NewID    func() string
	Logger   zerolog.Logger
}

var (
	customerOnce      sync.Once
	customerValidator *validator.Validate
)

func validateCustomer(c payment.Customer) error {
	customerOnce.Do(func() {
		customerValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := customerValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidCustomer, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidCustomer, err)
	}
	return nil
}

// Checkout validates the cart, records an order, opens a payment and removes
// the ordered items from the cart. The confirmation email is scheduled best-effort; failing to
// enqueue it never fails the checkout.
func (s *Service) Checkout(ctx context.Context, cartID string, customer payment.Customer) (Result, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Phone = strings.TrimSpace(customer.Phone)
	if err := validateCustomer(customer); err != nil {
		s.record("invalid_customer")
		return Result{}, err
	}
	if s.Carts == nil || s.Orders == nil || s.Gateway == nil {
		return Result{}, errors.New("checkout: service not configured")
	}

	var (
		result Result
		conf   notify.Confirmation
	)
	err := s.Carts.WithCart(ctx, cartID, func(ctx context.Context, svc *cart.Service) error {
		if _, err := svc.Refresh(ctx); err != nil {
			return err
		}
		if res := svc.Validate(); !res.Valid {
			s.record("invalid_cart")
			return &cart.ValidationError{Messages: res.Errors}
		}
		summary, err := svc.Summary(ctx)
		if err != nil {
			return err
		}
		order, err := s.buildOrder(cartID, customer, svc.Items(), summary)
		if err != nil {
			s.record("nothing_to_pay")
			return err
		}
		if err := s.Orders.Create(ctx, order); err != nil {
			s.record("error")
			return fmt.Errorf("create order: %w", err)
		}

		intent, err := s.Gateway.CreateIntent(ctx, payment.IntentRequest{
			OrderID:     order.ID,
			Amount:      order.Amount,
			Currency:    s.currency(),
			Description: fmt.Sprintf("Påmelding for %d elev(er)", len(order.Lines)),
			Customer:    customer,
		})
		if err == nil && !intent.Success {
			err = payment.ErrRejected
		}
		// The gateway has answered; record the outcome even if the caller or
		// the cart lock went away in the meantime.
		settle := context.WithoutCancel(ctx)
		if err != nil {
			if markErr := s.Orders.MarkFailed(settle, order.ID, err.Error(), s.now()); markErr != nil {
				s.Logger.Error().Err(markErr).Str("order_id", order.ID).Msg("mark order failed")
			}
			s.record("payment_failed")
			return fmt.Errorf("open payment: %w", err)
		}
		if err := s.Orders.MarkStarted(settle, order.ID, intent.ExternalOrderID, intent.RedirectURL, s.now()); err != nil {
			s.record("error")
			return fmt.Errorf("mark order started: %w", err)
		}
		if _, err := svc.RemoveItems(settle, order.ItemIDs()); err != nil {
			s.Logger.Error().Err(err).Str("order_id", order.ID).Msg("remove ordered items from cart")
		}

		result = Result{
			OrderID:         order.ID,
			Amount:          order.Amount,
			Discount:        order.Discount,
			RedirectURL:     intent.RedirectURL,
			ExternalOrderID: intent.ExternalOrderID,
		}
		conf = confirmationFor(order, intent.RedirectURL)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record("ok")
	s.Logger.Info().Str("order_id", result.OrderID).Int64("amount", result.Amount).Msg("checkout completed")

	if s.Notifier != nil {
		if err := s.Notifier.EnqueueConfirmation(ctx, conf); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", result.OrderID).Msg("enqueue confirmation email")
		}
	}
	return result, nil
}

func (s *Service) buildOrder(cartID string, customer payment.Customer, items []cart.Item, summary cart.Summary) (Order, error) {
	if summary.Total <= 0 {
		return Order{}, ErrNothingToPay
	}
	byID := make(map[string]cart.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	now := s.now()
	order := Order{
		ID:        s.newID(),
		CartID:    cartID,
		Customer:  customer,
		Amount:    summary.Total,
		Discount:  summary.Discount,
		Status:    StatusPending,
		Gateway:   s.Gateway.Name(),
		Lines:     make([]OrderLine, 0, len(summary.Lines)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, line := range summary.Lines {
		if !line.Pricing.Found() {
			return Order{}, fmt.Errorf("%w: %s", ErrNothingToPay, line.Pricing.PackageName)
		}
		it := byID[line.ItemID]
		order.Lines = append(order.Lines, OrderLine{
			ItemID:      line.ItemID,
			Student:     line.Student,
			Age:         it.Age,
			Courses:     it.Courses,
			PackageID:   line.Pricing.PackageID,
			PackageName: line.Pricing.PackageName,
			Total:       line.Pricing.Total,
			Discount:    line.Pricing.Discount,
		})
	}
	return order, nil
}

func confirmationFor(o Order, redirectURL string) notify.Confirmation {
	c := notify.Confirmation{
		OrderID:      o.ID,
		Email:        o.Customer.Email,
		CustomerName: o.Customer.Name,
		Amount:       o.Amount,
		Discount:     o.Discount,
		RedirectURL:  redirectURL,
		CreatedAt:    o.CreatedAt,
	}
	for _, line := range o.Lines {
		courses := make([]string, 0, len(line.Courses))
		for _, course := range line.Courses {
			courses = append(courses, course.Name)
		}
		c.Students = append(c.Students, notify.Student{
			Name:     line.Student,
			Courses:  courses,
			Package:  line.PackageName,
			Total:    line.Total,
			Discount: line.Discount,
		})
	}
	return c
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "NOK"
	}
	return s.Currency
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) record(result string) {
	obs.IncCounterVec(obs.CheckoutTotal, result)
}
