package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicslot/clinicslot/internal/api"
	"github.com/clinicslot/clinicslot/internal/appointment"
	"github.com/clinicslot/clinicslot/internal/auth"
	"github.com/clinicslot/clinicslot/internal/config"
	"github.com/clinicslot/clinicslot/internal/db"
	"github.com/clinicslot/clinicslot/internal/emr"
	"github.com/clinicslot/clinicslot/internal/logging"
	redisclient "github.com/clinicslot/clinicslot/internal/redis"
	"github.com/clinicslot/clinicslot/internal/seed"
)

type stores struct {
	appointments appointment.Repository
	records      emr.Repository
	relations    emr.Relations
	checks       []api.DependencyCheck
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("api-server", true, "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("api-server", cfg.IsDev(), cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store setup error")
	}
	defer st.close()

	var locker redisclient.Locker = redisclient.NopLocker{}
	if cfg.RedisEnabled {
		rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, booking without slot lock")
		} else {
			defer closeRedis(rdb, logger)
			locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
			st.checks = append(st.checks, api.DependencyCheck{Name: "redis", Ping: redisclient.Pinger(rdb)})
			logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
		}
	}

	appointments := appointment.NewService(st.appointments, locker, logger)
	records := emr.NewService(st.records, st.relations, logger)

	if cfg.StoreBackend == config.StoreMemory && cfg.SeedDemo {
		seedDemo(rootCtx, st.appointments, cfg, logger)
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Records:      records,
		Logger:       logger,
		JWTSecret:    cfg.JWTSecret,
		RateLimiter:  api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Checks:       st.checks,
		Env:          cfg.Env,
		Version:      cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreBackend == config.StoreMemory {
		repo := appointment.NewMemoryRepository()
		return &stores{
			appointments: repo,
			records:      emr.NewMemoryRepository(),
			relations:    repo,
			close:        func() {},
		}, nil
	}

	pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresConns)
	cancelPg()
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to Postgres")

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Info().Strs("migrations", applied).Msg("applied migrations")
	}

	repo := appointment.NewPgRepository(pool)
	return &stores{
		appointments: repo,
		records:      emr.NewPgRepository(pool),
		relations:    repo,
		checks:       []api.DependencyCheck{{Name: "postgres", Critical: true, Ping: pool.Ping}},
		close:        pool.Close,
	}, nil
}

// seedDemo fills the memory store and logs a token per sample principal so the
// API can be exercised by hand.
func seedDemo(ctx context.Context, store seed.Store, cfg config.Config, logger zerolog.Logger) {
	res, err := seed.Run(ctx, store, seed.NewGenerator(uint64(time.Now().UnixNano())), 5, 20, logger)
	if err != nil {
		logger.Error().Err(err).Msg("demo seed failed")
		return
	}

	for i, id := range res.DoctorIDs[:min(2, len(res.DoctorIDs))] {
		tok, _ := auth.MakeToken(auth.Principal{ID: id, Role: auth.RoleDoctor}, cfg.JWTSecret, 24*time.Hour)
		logger.Info().Int("n", i).Str("doctor_id", id.String()).Str("token", tok).Msg("demo doctor")
	}
	for i, id := range res.PatientIDs[:min(2, len(res.PatientIDs))] {
		tok, _ := auth.MakeToken(auth.Principal{ID: id, Role: auth.RolePatient}, cfg.JWTSecret, 24*time.Hour)
		logger.Info().Int("n", i).Str("patient_id", id.String()).Str("token", tok).Msg("demo patient")
	}
}

func closeRedis(rdb *redis.Client, logger zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing redis")
	}
}
