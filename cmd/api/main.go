package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dansestudio/internal/app"
	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/catalog"
	"github.com/noah-isme/dansestudio/internal/checkout"
	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/config"
	"github.com/noah-isme/dansestudio/internal/health"
	"github.com/noah-isme/dansestudio/internal/notify"
	"github.com/noah-isme/dansestudio/internal/obs"
	"github.com/noah-isme/dansestudio/internal/ratelimit"
	"github.com/noah-isme/dansestudio/internal/security"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).Str("component", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNS, nil)
	}
	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Obs.TracingEnabled,
		ServiceName:   cfg.Obs.ServiceName,
		Endpoint:      cfg.Obs.OTLPEndpoint,
		SamplingRatio: cfg.Obs.TraceSampleRate,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	var notifier checkout.Notifier
	if redisOpt, ok := deps.AsynqRedis(); ok {
		client := asynq.NewClient(redisOpt)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		notifier = notify.Enqueuer{Client: client, Logger: logger}
	}

	checkoutSvc := &checkout.Service{
		Carts:    deps.Carts,
		Orders:   deps.Orders,
		Gateway:  deps.Gateway,
		Notifier: notifier,
		Logger:   logger.With().Str("component", "checkout").Logger(),
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, deps, checkoutSvc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	// The API runs the expiry sweep itself when there is no shared store for a
	// worker to sweep.
	if deps.Redis == nil {
		sweeper := cart.Sweeper{Registry: deps.Carts, Interval: cfg.CartSweepInterval, Logger: logger}
		go sweeper.Run(ctx)
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	logger.Info().Msg("server draining")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, deps *app.Dependencies, checkoutSvc *checkout.Service, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Obs.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.Obs.MetricsEnabled {
		r.Use(obs.HTTPObs{Metrics: obs.NewHTTPMetrics(cfg.Obs.MetricsNS, nil, nil)}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.IsProduction()}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Idempotent-Replayed"},
		MaxAge:         300,
	}))

	if cfg.Obs.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	healthHandler := health.Handler{Checks: []health.Check{health.Postgres(deps.DB), health.Redis(deps.Redis)}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	catalogHandler := &catalog.Handler{Provider: deps.Catalog, Engine: deps.Engine, Logger: logger}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	checkoutLimit := checkoutLimiter(cfg, deps, logger)

	cartHandler := &cart.Handler{
		Registry: deps.Carts,
		Subroutes: func(c chi.Router) {
			c.With(checkoutLimit.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
		},
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)
		catalogHandler.Routes(v)
		cartHandler.Routes(v)
		v.Get("/orders/{orderID}", checkoutHandler.Order)
	})
	return r
}

func checkoutLimiter(cfg *config.Config, deps *app.Dependencies, logger zerolog.Logger) ratelimit.Handler {
	h := ratelimit.Handler{
		Key: ratelimit.ByClientIP,
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("checkout rate limiter unavailable")
		},
	}
	rate, err := ratelimit.ParseRate(cfg.CheckoutRateLimit)
	if err != nil {
		logger.Error().Err(err).Str("rate", cfg.CheckoutRateLimit).Msg("invalid checkout rate limit; limiter disabled")
		return h
	}
	if deps.Redis == nil {
		h.Limiter = ratelimit.NewMemory("checkout", rate)
		return h
	}
	limiter, err := ratelimit.NewRedis(deps.Redis, "checkout", rate)
	if err != nil {
		logger.Error().Err(err).Msg("redis rate limiter; falling back to memory")
		h.Limiter = ratelimit.NewMemory("checkout", rate)
		return h
	}
	h.Limiter = limiter
	return h
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
