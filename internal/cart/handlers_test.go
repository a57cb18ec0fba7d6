package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/pricing"
)

type catalogStub []pricing.Package

func (c catalogStub) Packages(context.Context) ([]pricing.Package, error) { return c, nil }

func newCartRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := &cart.Registry{
		Store:   cart.NewMemoryStore(),
		Catalog: catalogStub{{ID: "pkg-1", Name: "1 klasse", Price: 170_000, Active: true}},
		TTL:     30 * time.Minute,
		Logger:  zerolog.Nop(),
	}
	h := &cart.Handler{Registry: reg}
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCartHandlersFlow(t *testing.T) {
	router := newCartRouter(t)

	rec := do(t, router, http.MethodPost, "/api/v1/carts", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data struct {
			CartID string `json:"cartId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.CartID)
	base := "/api/v1/carts/" + created.Data.CartID

	student := `{"firstName":"Ola","lastName":"Hansen","age":9,"courses":[{"id":"jazz","name":"Jazz","ageRange":"8+ år"}]}`
	rec = do(t, router, http.MethodPost, base+"/items", student)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var added struct {
		Data cart.Item `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	require.False(t, added.Data.SecondDancer)

	rec = do(t, router, http.MethodPost, base+"/items", student)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, base+"/items/"+added.Data.ID+"/duplicate", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var dup struct {
		Data cart.Item `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dup))
	require.Equal(t, "Hansen (copy)", dup.Data.LastName)
	require.True(t, dup.Data.SecondDancer)

	rec = do(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Data struct {
			Items   []cart.Item  `json:"items"`
			Summary cart.Summary `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Data.Items, 2)
	require.Equal(t, pricing.Money(170_000+144_500), got.Data.Summary.Total)

	rec = do(t, router, http.MethodGet, base+"/validate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"valid":true`)

	rec = do(t, router, http.MethodDelete, base+"/items/"+dup.Data.ID, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodDelete, base+"/items/"+dup.Data.ID, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, base, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCartHandlersRejectInvalidInput(t *testing.T) {
	router := newCartRouter(t)

	rec := do(t, router, http.MethodGet, "/api/v1/carts/not-a-uuid", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	base := "/api/v1/carts/6f1c7a3e-4d55-4b7e-9b0e-2a0f4f3b9c11"
	rec = do(t, router, http.MethodPost, base+"/items", `{"firstName":"","age":1,"courses":[]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body struct {
		Error struct {
			Code    string   `json:"code"`
			Details []string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	require.Contains(t, body.Error.Details, "Velg minst ett kurs")

	rec = do(t, router, http.MethodPost, base+"/items", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
