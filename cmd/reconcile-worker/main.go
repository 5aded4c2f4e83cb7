package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicslot/clinicslot/internal/appointment"
	"github.com/clinicslot/clinicslot/internal/config"
	"github.com/clinicslot/clinicslot/internal/db"
	"github.com/clinicslot/clinicslot/internal/logging"
	"github.com/clinicslot/clinicslot/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("reconcile-worker", true, "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("reconcile-worker", cfg.IsDev(), cfg.LogLevel)

	if cfg.StoreBackend != config.StorePostgres {
		logger.Fatal().Str("store", cfg.StoreBackend).Msg("reconcile worker needs the postgres store")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Int("window_days", cfg.ReconcileWindow).
		Msg("reconcile worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// The worker only reads and deletes booked slots, so it runs without the slot lock.
	svc := appointment.NewService(appointment.NewPgRepository(pgPool), nil, logger)

	runOnce(rootCtx, svc, cfg.ReconcileWindow, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.ReconcileWindow, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, windowDays int, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	today := schedule.DateOf(time.Now())
	from, to := today.AddDays(-windowDays), today.AddDays(windowDays)

	start := time.Now()
	released, err := svc.ReconcileBookedSlots(runCtx, from, to)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile run error")
		return
	}
	logger.Info().
		Int("released", released).
		Str("from", from.String()).
		Str("to", to.String()).
		Dur("took", time.Since(start)).
		Msg("reconcile run complete")
}
