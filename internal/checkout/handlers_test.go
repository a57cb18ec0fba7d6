package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/payment"
)

const testCartID = "0b8f5f6c-7d1a-4a55-9a4e-3f1c2f9d8e11"

func newRouter(svc *Service) http.Handler {
	h := &Handler{Svc: svc}
	r := chi.NewRouter()
	r.Post("/carts/{cartID}/checkout", h.Checkout)
	r.Get("/orders/{orderID}", h.Order)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestCheckoutHandlerCreatesOrder(t *testing.T) {
	svc := newService(payment.MockGateway{}, nil)
	fillCart(t, svc, testCartID, cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})
	router := newRouter(svc)

	rec := post(t, router, "/carts/"+testCartID+"/checkout",
		`{"customer":{"name":"Ingrid Hansen","email":"ingrid@example.no"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, int64(170_000), created.Data.Amount)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+created.Data.OrderID, nil)
	got := httptest.NewRecorder()
	router.ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)
	require.Contains(t, got.Body.String(), StatusPaymentStarted)
}

func TestCheckoutHandlerErrors(t *testing.T) {
	svc := newService(payment.MockGateway{}, nil)
	router := newRouter(svc)

	rec := post(t, router, "/carts/not-a-uuid/checkout", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, router, "/carts/"+testCartID+"/checkout", `{"customer":{"name":"","email":""}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_CUSTOMER", errorCode(t, rec))

	rec = post(t, router, "/carts/"+testCartID+"/checkout",
		`{"customer":{"name":"Ingrid","email":"ingrid@example.no"}}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "CART_INVALID", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/orders/missing", nil)
	got := httptest.NewRecorder()
	router.ServeHTTP(got, req)
	require.Equal(t, http.StatusNotFound, got.Code)
}

func TestCheckoutHandlerMapsGatewayFailures(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{payment.ErrGatewayUnavailable, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE"},
		{payment.ErrRejected, http.StatusPaymentRequired, "PAYMENT_REJECTED"},
	}
	for _, tc := range cases {
		svc := newService(failingGateway{err: tc.err}, nil)
		fillCart(t, svc, testCartID, cart.Draft{FirstName: "Ola", LastName: "Hansen", Age: 10, Courses: jazz()})
		rec := post(t, newRouter(svc), "/carts/"+testCartID+"/checkout",
			`{"customer":{"name":"Ingrid","email":"ingrid@example.no"}}`)
		require.Equal(t, tc.status, rec.Code)
		require.Equal(t, tc.code, errorCode(t, rec))
	}
}
