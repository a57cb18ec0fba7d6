package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/dansestudio/internal/common"
)

// Handler wires the cart registry to HTTP.
type Handler struct {
	Registry *Registry
	// Subroutes registers extra endpoints under /carts/{cartID}, such as checkout.
	Subroutes func(r chi.Router)
}

// Routes mounts the cart endpoints under the router it is given.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/carts", h.Create)
	r.Route("/carts/{cartID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Clear)
		r.Post("/refresh", h.Refresh)
		r.Get("/validate", h.Validate)
		r.Post("/items", h.AddItem)
		r.Patch("/items/{itemID}", h.UpdateItem)
		r.Delete("/items/{itemID}", h.RemoveItem)
		r.Post("/items/{itemID}/duplicate", h.DuplicateItem)
		r.Post("/items/{itemID}/family-discount", h.ToggleFamilyDiscount)
		if h.Subroutes != nil {
			h.Subroutes(r)
		}
	})
}

// Create issues a new cart identifier.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	common.Data(w, http.StatusCreated, map[string]any{"cartId": uuid.NewString()})
}

// Get returns the cart items together with a freshly priced summary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		summary, err := svc.Summary(ctx)
		if err != nil {
			return err
		}
		common.Data(w, http.StatusOK, map[string]any{
			"cartId":  svc.Key(),
			"items":   svc.Items(),
			"summary": summary,
		})
		return nil
	})
}

// AddItem appends a student to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		item, err := svc.Add(ctx, draft)
		if err != nil {
			return err
		}
		common.Data(w, http.StatusCreated, item)
		return nil
	})
}

// UpdateItem replaces a student's details.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	itemID := chi.URLParam(r, "itemID")
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		item, err := svc.Update(ctx, itemID, draft)
		if err != nil {
			return err
		}
		common.Data(w, http.StatusOK, item)
		return nil
	})
}

// RemoveItem deletes a student from the cart.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		if err := svc.Remove(ctx, itemID); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// DuplicateItem clones a student as a sibling.
func (h *Handler) DuplicateItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		item, err := svc.Duplicate(ctx, itemID)
		if err != nil {
			return err
		}
		common.Data(w, http.StatusCreated, item)
		return nil
	})
}

// ToggleFamilyDiscount flips the family discount on an item.
func (h *Handler) ToggleFamilyDiscount(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		item, err := svc.ToggleFamilyDiscount(ctx, itemID)
		if err != nil {
			return err
		}
		common.Data(w, http.StatusOK, item)
		return nil
	})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		if err := svc.Clear(ctx); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// Refresh drops expired items.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		removed, err := svc.Refresh(ctx)
		if err != nil {
			return err
		}
		common.Data(w, http.StatusOK, map[string]any{"removed": removed, "itemCount": svc.Len()})
		return nil
	})
}

// Validate runs the pre-checkout gate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(ctx context.Context, svc *Service) error {
		common.Data(w, http.StatusOK, svc.Validate())
		return nil
	})
}

func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, fn func(context.Context, *Service) error) {
	if h.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart registry not configured", nil)
		return
	}
	key := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if _, err := uuid.Parse(key); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	if err := h.Registry.WithCart(r.Context(), key, fn); err != nil {
		WriteError(w, err)
	}
}

// WriteError maps cart errors onto the API error shape.
func WriteError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case common.WriteAppError(w, err):
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid student details", verr.Messages)
	case errors.Is(err, ErrDuplicateName):
		common.JSONError(w, http.StatusConflict, "DUPLICATE_STUDENT", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "cart item not found", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to process cart", nil)
	}
}
