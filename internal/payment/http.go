package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns a client whose transport is traced with OpenTelemetry.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// HTTPGateway opens payments against a JSON REST payment provider. The order
// id doubles as the provider idempotency key, so failed attempts are retried.
type HTTPGateway struct {
	BaseURL     string
	APIKey      string
	Client      *http.Client
	MaxAttempts int
	BaseBackoff time.Duration
}

// Name implements Gateway.
func (HTTPGateway) Name() string { return "http" }

type providerResponse struct {
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
	PaymentID   string `json:"payment_id"`
	Message     string `json:"message"`
}

// CreateIntent implements Gateway.
func (g HTTPGateway) CreateIntent(ctx context.Context, req IntentRequest) (IntentResponse, error) {
	if strings.TrimSpace(g.BaseURL) == "" {
		return IntentResponse{}, fmt.Errorf("payment base url not configured: %w", ErrGatewayUnavailable)
	}
	if req.Currency == "" {
		req.Currency = "NOK"
	}
	body, err := json.Marshal(req)
	if err != nil {
		return IntentResponse{}, err
	}

	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, retry, err := g.post(ctx, req.OrderID, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry || attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(g.BaseBackoff, attempt, 0.2))
		select {
		case <-ctx.Done():
			timer.Stop()
			return IntentResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
	return IntentResponse{}, lastErr
}

// post performs a single attempt and reports whether a failure is retryable.
func (g HTTPGateway) post(ctx context.Context, orderID string, body []byte) (IntentResponse, bool, error) {
	endpoint := strings.TrimRight(g.BaseURL, "/") + "/v1/payments"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return IntentResponse{}, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", orderID)
	if g.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	client := g.Client
	if client == nil {
		client = NewHTTPClient(0)
	}
	res, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return IntentResponse{}, false, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return IntentResponse{}, true, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return IntentResponse{}, true, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}
	if res.StatusCode >= 500 {
		return IntentResponse{}, true, fmt.Errorf("%w: %s", ErrGatewayUnavailable, res.Status)
	}

	var payload providerResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return IntentResponse{}, false, fmt.Errorf("%w: decode response: %v", ErrGatewayUnavailable, err)
	}
	if res.StatusCode >= 400 || !strings.EqualFold(payload.Status, "created") || payload.RedirectURL == "" {
		msg := payload.Message
		if msg == "" {
			msg = res.Status
		}
		return IntentResponse{}, false, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	return IntentResponse{
		Success:         true,
		RedirectURL:     payload.RedirectURL,
		ExternalOrderID: payload.PaymentID,
	}, false, nil
}
