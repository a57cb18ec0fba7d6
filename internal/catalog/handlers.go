package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

// Handler exposes the package catalog and stateless price previews.
type Handler struct {
	Provider Provider
	Engine   *pricing.Engine
	Logger   zerolog.Logger
}

// Routes mounts the catalog endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/packages", h.List)
	r.Post("/pricing/quote", h.Quote)
}

type packageView struct {
	pricing.Package
	PriceLabel string `json:"priceLabel"`
}

// List returns the active pricing packages.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog provider not configured", nil)
		return
	}
	pkgs, err := h.Provider.Packages(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list pricing packages")
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "pricing catalog unavailable", nil)
		return
	}
	out := make([]packageView, 0, len(pkgs))
	for _, pkg := range pkgs {
		out = append(out, packageView{Package: pkg, PriceLabel: pricing.FormatNOK(pkg.Price)})
	}
	common.Data(w, http.StatusOK, out)
}

type quoteRequest struct {
	Courses      []pricing.Course `json:"courses"`
	SecondDancer *bool            `json:"isSecondDancerInFamily"`
	Override     *bool            `json:"familyDiscountOverride"`
	CartSize     int              `json:"cartSize"`
}

type quoteResponse struct {
	pricing.Calculation
	FamilyEligible bool   `json:"familyEligible"`
	TotalLabel     string `json:"totalLabel"`
}

// Quote prices a course selection without touching any cart.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog provider not configured", nil)
		return
	}
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.CartSize < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "cartSize must not be negative", nil)
		return
	}
	pkgs, err := h.Provider.Packages(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("load pricing packages for quote")
		common.JSONError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "pricing catalog unavailable", nil)
		return
	}
	eligible := pricing.ResolveEligibility(pricing.FromPtr(req.SecondDancer), pricing.FromPtr(req.Override), req.CartSize)
	calc := h.engine().Quote(req.Courses, pkgs, eligible)
	common.Data(w, http.StatusOK, quoteResponse{
		Calculation:    calc,
		FamilyEligible: eligible,
		TotalLabel:     pricing.FormatNOK(calc.Total),
	})
}

func (h *Handler) engine() *pricing.Engine {
	if h.Engine != nil {
		return h.Engine
	}
	return pricing.NewEngine(pricing.DefaultRates(), h.Logger)
}
