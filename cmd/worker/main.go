package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stylebff/internal/bootstrap"
	"stylebff/internal/infra"
	"stylebff/internal/infra/credentials"
	"stylebff/internal/jobs"
)

// sweeper settles jobs nobody is watching: clients that never came back and
// webhooks that never arrived.
type sweeper interface {
	Sweep(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	svc, err := bootstrap.Jobs(cfg, runner, credentials.NewStore(runner), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: job service init failed")
	}

	logger.Info().Dur("interval", cfg.WorkerSweepInterval).Int("batch", cfg.WorkerSweepBatch).Msg("worker started")
	run(ctx, svc, cfg.WorkerSweepInterval, cfg.WorkerSweepBatch, logger)
	logger.Info().Msg("worker stopped")
}

func run(ctx context.Context, svc sweeper, interval time.Duration, batch int, logger infra.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sweepOnce(ctx, svc, interval, batch, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweepOnce(ctx context.Context, svc sweeper, interval time.Duration, batch int, logger infra.Logger) {
	settled, err := svc.Sweep(ctx, time.Now().Add(-interval), batch)
	if err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("sweep failed")
		return
	}
	if settled > 0 {
		logger.Info().Int("settled", settled).Msg("sweep settled jobs")
	}
}

var _ sweeper = (*jobs.Service)(nil)
