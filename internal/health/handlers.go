package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/dansestudio/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness flag. The API marks itself not ready when it
// starts draining so load balancers stop routing new carts to it.
func SetReady(v bool) { ready.Store(v) }

// Check probes one dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Postgres returns a check for the catalog and order database. A nil pool
// yields a disabled check.
func Postgres(pool *pgxpool.Pool) Check {
	c := Check{Name: "db"}
	if pool != nil {
		c.Ping = pool.Ping
	}
	return c
}

// Redis returns a check for the cart store and queue backend. A nil client
// yields a disabled check.
func Redis(client *redis.Client) Check {
	c := Check{Name: "redis"}
	if client != nil {
		c.Ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return c
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks  []Check
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes. Disabled checks are
// reported but never fail readiness.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Checks)+1)
	healthy := ready.Load()
	if !healthy {
		status["app"] = "shutting down"
	}
	for _, c := range h.Checks {
		if c.Ping == nil {
			status[c.Name] = "disabled"
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		err := c.Ping(ctx)
		cancel()
		if err != nil {
			status[c.Name] = err.Error()
			healthy = false
			continue
		}
		status[c.Name] = "ok"
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
