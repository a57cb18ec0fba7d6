package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/payment"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
}

type checkoutRequest struct {
	Customer payment.Customer `json:"customer"`
}

// Checkout handles POST /carts/{cartID}/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if _, err := uuid.Parse(cartID); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	var payload checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.Checkout(r.Context(), cartID, payload.Customer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Order handles GET /orders/{orderID}.
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Svc.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	order, err := h.Svc.Orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, order)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *cart.ValidationError
	switch {
	case errors.Is(err, ErrInvalidCustomer):
		common.JSONError(w, http.StatusBadRequest, "INVALID_CUSTOMER", err.Error(), nil)
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusUnprocessableEntity, "CART_INVALID", "cart is not ready for checkout", verr.Messages)
	case errors.Is(err, ErrNothingToPay):
		common.JSONError(w, http.StatusUnprocessableEntity, "NOTHING_TO_PAY", err.Error(), nil)
	case errors.Is(err, ErrOrderNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, payment.ErrRejected):
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_REJECTED", "payment could not be started", nil)
	case errors.Is(err, payment.ErrGatewayUnavailable):
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENT_UNAVAILABLE", "payment provider unavailable", nil)
	default:
		cart.WriteError(w, err)
	}
}
