package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/dansestudio/internal/app"
	"github.com/noah-isme/dansestudio/internal/cart"
	"github.com/noah-isme/dansestudio/internal/common"
	"github.com/noah-isme/dansestudio/internal/config"
	"github.com/noah-isme/dansestudio/internal/notify"
	"github.com/noah-isme/dansestudio/internal/obs"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Obs.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNS, nil)
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Open(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	var wg sync.WaitGroup
	sweeper := cart.Sweeper{
		Registry: deps.Carts,
		Interval: cfg.CartSweepInterval,
		Logger:   logger.With().Str("job", "cart-sweep").Logger(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	redisOpt, ok := deps.AsynqRedis()
	if !ok {
		logger.Warn().Msg("REDIS_URL not set; running cart sweeper only")
		<-ctx.Done()
		wg.Wait()
		logger.Info().Msg("worker shutdown complete")
		return
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{notify.QueueNotifications: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          asynqLogger{logger: logger},
	})

	processor := &notify.Processor{
		Mail:   common.LogEmailSender{Logger: logger.With().Str("sender", "log").Logger()},
		Guard:  notify.RedisReplayGuard{Client: deps.Redis},
		Logger: logger,
	}
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()
	srv.Shutdown()
	wg.Wait()
	logger.Info().Msg("worker shutdown complete")
}
