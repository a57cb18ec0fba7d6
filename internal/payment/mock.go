package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// MockGateway synthesises a redirect to a local mock payment page without any
// network call.
type MockGateway struct {
	BaseURL string
}

// Name implements Gateway.
func (MockGateway) Name() string { return "mock" }

// CreateIntent implements Gateway.
func (m MockGateway) CreateIntent(_ context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return IntentResponse{}, errors.New("order id is required")
	}
	if req.Amount <= 0 {
		return IntentResponse{}, fmt.Errorf("amount must be positive: %w", ErrRejected)
	}
	external := "MOCK-" + req.OrderID
	q := url.Values{}
	q.Set("order", req.OrderID)
	q.Set("ref", external)
	q.Set("amount", fmt.Sprintf("%d", req.Amount))
	return IntentResponse{
		Success:         true,
		RedirectURL:     fmt.Sprintf("%s/mock-payment?%s", strings.TrimRight(m.host(), "/"), q.Encode()),
		ExternalOrderID: external,
	}, nil
}

func (m MockGateway) host() string {
	if host := strings.TrimSpace(m.BaseURL); host != "" {
		return host
	}
	return "http://localhost:8080"
}
