package payment

import (
	"context"
	"errors"
)

var (
	// ErrGatewayUnavailable is returned when the payment gateway cannot be reached.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrRejected is returned when the gateway declines to open a payment.
	ErrRejected = errors.New("payment rejected by gateway")
)

// Customer identifies the guardian paying for an enrollment.
type Customer struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

// IntentRequest carries what the gateway needs to open a payment.
type IntentRequest struct {
	OrderID     string   `json:"orderId"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency"`
	Description string   `json:"description,omitempty"`
	Customer    Customer `json:"customer"`
}

// IntentResponse is the gateway's answer to an IntentRequest.
type IntentResponse struct {
	Success         bool   `json:"success"`
	RedirectURL     string `json:"redirectUrl"`
	ExternalOrderID string `json:"externalOrderId"`
}

// Gateway opens payments with an upstream provider.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error)
}
