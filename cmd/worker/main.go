package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/app"
	"github.com/partnerlink/settlement-api/internal/config"
	"github.com/partnerlink/settlement-api/internal/domain/gateway"
	"github.com/partnerlink/settlement-api/internal/pkg/database"
	"github.com/partnerlink/settlement-api/internal/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		Service:     "settlement-worker",
	})

	log.Info().Msg("Starting settlement worker")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.Build(ctx, cfg, db, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build services")
	}

	// Optional: Redis pub/sub wake-up (tickers still run)
	wake := make(chan string, 1)
	go database.SubscribeWakeups(ctx, rdb, wake)

	scheduler := gateway.NewScheduler(svc.Runner, wake, schedules(cfg)...)
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	log.Info().Msg("Shutdown signal received")

	cancel()
	scheduler.Stop()
	svc.Close()
	log.Info().Msg("settlement worker stopped")
}

// schedules skips jobs whose interval is zero, leaving them to external cron.
func schedules(cfg *config.Config) []gateway.Schedule {
	var out []gateway.Schedule
	if cfg.MaturationInterval > 0 {
		out = append(out, gateway.Schedule{Job: gateway.JobMaturation, Interval: cfg.MaturationInterval})
	}
	if cfg.PayoutInterval > 0 {
		out = append(out, gateway.Schedule{Job: gateway.JobPayouts, Interval: cfg.PayoutInterval})
	}
	if cfg.ReconcileInterval > 0 {
		out = append(out, gateway.Schedule{Job: gateway.JobReconcile, Interval: cfg.ReconcileInterval})
	}
	return out
}
