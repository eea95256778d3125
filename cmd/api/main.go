package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/app"
	"github.com/partnerlink/settlement-api/internal/config"
	"github.com/partnerlink/settlement-api/internal/domain/balance"
	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/domain/commission"
	"github.com/partnerlink/settlement-api/internal/domain/gateway"
	"github.com/partnerlink/settlement-api/internal/domain/giftcard"
	"github.com/partnerlink/settlement-api/internal/domain/payout"
	"github.com/partnerlink/settlement-api/internal/middleware"
	"github.com/partnerlink/settlement-api/internal/pkg/database"
	"github.com/partnerlink/settlement-api/internal/pkg/jwt"
	"github.com/partnerlink/settlement-api/internal/pkg/logger"
	"github.com/partnerlink/settlement-api/internal/pkg/metrics"
	pkgresponse "github.com/partnerlink/settlement-api/internal/pkg/response"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		Service:     "settlement-api",
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting settlement API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		// redis only guards sweeps and carries wake-ups
		log.Warn().Err(err).Msg("Redis unavailable, sweep locks disabled")
		redis = nil
	}
	defer database.CloseRedis(redis)

	svc, err := app.Build(context.Background(), cfg, db, redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build services")
	}
	defer svc.Close()

	var wake gateway.Waker
	if redis != nil {
		wake = func(ctx context.Context, job string) { database.PublishWake(ctx, redis, job) }
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, svc, wake),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func newRouter(cfg *config.Config, svc *app.Services, wake gateway.Waker) http.Handler {
	jwtService := jwt.NewService(cfg.JWTSecret)

	// ---------- Handlers ----------
	beneficiaryHandler := beneficiary.NewHandler(svc.Beneficiaries)
	balanceHandler := balance.NewHandler(svc.Balances)
	commissionHandler := commission.NewHandler(svc.Commissions)
	payoutHandler := payout.NewHandler(svc.Payouts)
	giftCardHandler := giftcard.NewHandler(svc.GiftCards)

	cronHandler := gateway.NewCronHandler(svc.Runner, wake)
	webhookHandler := gateway.NewWebhookHandler(svc.Events, svc.Commissions, svc.Payouts, svc.GiftCards, gateway.WebhookConfig{
		StripeSecret:     cfg.StripeWebhookSecret,
		AggregatorSecret: cfg.AggregatorWebhookSecret,
		ConversionSecret: cfg.ConversionWebhookSecret,
	})

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	r.Handle("/metrics", metrics.Handler())

	authMiddleware := middleware.Auth(jwtService)
	adminMiddleware := middleware.RequireAdmin()

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireBeneficiary())

		balanceHandler.Routes(r)
		commissionHandler.Routes(r)
		payoutHandler.Routes(r)
		giftCardHandler.Routes(r)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Mount("/beneficiaries", beneficiaryHandler.AdminRoutes(authMiddleware, adminMiddleware))
		r.Mount("/balances", balanceHandler.AdminRoutes(authMiddleware, adminMiddleware))
		r.Mount("/payouts", payoutHandler.AdminRoutes(authMiddleware, adminMiddleware))
		r.Mount("/jobs", cronHandler.AdminRoutes(authMiddleware, adminMiddleware))
	})

	r.Mount("/webhooks", webhookHandler.WebhookRoutes())
	r.Mount("/cron", cronHandler.Routes(middleware.CronAuth(cfg.CronSecret)))

	return r
}
