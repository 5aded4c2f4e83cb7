package main

import (
	"context"
	"flag"
	"time"

	"github.com/clinicslot/clinicslot/internal/appointment"
	"github.com/clinicslot/clinicslot/internal/config"
	"github.com/clinicslot/clinicslot/internal/db"
	"github.com/clinicslot/clinicslot/internal/logging"
	"github.com/clinicslot/clinicslot/internal/seed"
)

func main() {
	doctors := flag.Int("doctors", 100, "number of doctors to create")
	patients := flag.Int("patients", 9000, "number of patients to create")
	seedValue := flag.Uint64("seed", 0, "faker seed; 0 picks one from the clock")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("seed", true, "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("seed", cfg.IsDev(), cfg.LogLevel)
	logger.Info().Msg("seed starting")

	if cfg.StoreBackend != config.StorePostgres {
		logger.Fatal().Msg("seed writes to postgres; set STORE_BACKEND=postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.PostgresConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	if *seedValue == 0 {
		*seedValue = uint64(time.Now().UnixNano())
	}
	logger.Info().Uint64("seed", *seedValue).Msg("faker seeded")

	res, err := seed.Run(ctx, appointment.NewPgRepository(pool), seed.NewGenerator(*seedValue), *doctors, *patients, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}

	logger.Info().
		Int("doctors", len(res.DoctorIDs)).
		Int("patients", len(res.PatientIDs)).
		Msg("seed complete")
}
