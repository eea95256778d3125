// Package app wires repositories, rails and services shared by the API
// server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/config"
	"github.com/partnerlink/settlement-api/internal/domain/balance"
	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/domain/commission"
	"github.com/partnerlink/settlement-api/internal/domain/gateway"
	"github.com/partnerlink/settlement-api/internal/domain/giftcard"
	"github.com/partnerlink/settlement-api/internal/domain/ledger"
	"github.com/partnerlink/settlement-api/internal/domain/notification"
	"github.com/partnerlink/settlement-api/internal/domain/payout"
	"github.com/partnerlink/settlement-api/internal/pkg/aggregator"
	"github.com/partnerlink/settlement-api/internal/pkg/database"
	"github.com/partnerlink/settlement-api/internal/pkg/email"
	"github.com/partnerlink/settlement-api/internal/pkg/storage"
	"github.com/partnerlink/settlement-api/internal/pkg/stripeconnect"
)

type Services struct {
	Beneficiaries *beneficiary.Service
	Balances      *balance.Service
	Commissions   *commission.Service
	Maturer       *commission.Maturer
	Payouts       *payout.Dispatcher
	GiftCards     *giftcard.Service
	Events        *gateway.EventRepository
	Runner        *gateway.Runner
	Mailer        *email.Service
}

// Close drains queued emails.
func (s *Services) Close() {
	s.Mailer.Close()
}

// Build constructs every service. Rails whose credentials are missing are
// left out; beneficiaries on those methods get payout_method_unavailable.
func Build(ctx context.Context, cfg *config.Config, db *sqlx.DB, rdb *redis.Client) (*Services, error) {
	platformAccount, err := platformAccountID(cfg)
	if err != nil {
		return nil, err
	}

	ledgerRepo := ledger.NewRepository(db)
	beneficiaryRepo := beneficiary.NewRepository(db)
	balanceRepo := balance.NewRepository(db, ledgerRepo)
	commissionRepo := commission.NewRepository(db, balanceRepo, ledgerRepo)
	payoutRepo := payout.NewRepository(db, balanceRepo, ledgerRepo)
	giftCardRepo := giftcard.NewRepository(db, balanceRepo, ledgerRepo)

	beneficiarySvc := beneficiary.NewService(beneficiaryRepo)

	var (
		rails     []payout.Rail
		fulfiller giftcard.Fulfiller
	)
	if cfg.StripeSecretKey != "" {
		rails = append(rails, payout.NewConnectRail(stripeconnect.NewClient(cfg.StripeSecretKey)))
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, CONNECT_TRANSFER payouts disabled")
	}
	if cfg.AggregatorBaseURL != "" {
		aggClient := aggregator.NewClient(cfg.AggregatorBaseURL, cfg.AggregatorAPIKey, cfg.AggregatorTimeout)
		rails = append(rails, payout.NewAggregatorRail(aggClient))
		fulfiller = giftcard.NewAggregatorFulfiller(aggClient)
	} else {
		log.Warn().Msg("AGGREGATOR_BASE_URL not set, AGGREGATOR_PAYOUT payouts and gift cards disabled")
	}

	store, err := storage.New(ctx, storage.Config{
		S3Endpoint:  cfg.S3Endpoint,
		S3Region:    cfg.S3Region,
		S3AccessKey: cfg.S3AccessKey,
		S3SecretKey: cfg.S3SecretKey,
		S3Bucket:    cfg.S3Bucket,
	}, "./data/manual-payouts")
	if err != nil {
		return nil, fmt.Errorf("init instruction storage: %w", err)
	}
	rails = append(rails, payout.NewManualRail(store))

	dispatcher := payout.NewDispatcher(payoutRepo, beneficiarySvc, payout.Config{
		Currency:       cfg.SettlementCurrency,
		MinAmount:      cfg.MinPayoutAmount,
		ReconcileGrace: cfg.ReconcileGrace,
	}, rails...)

	giftCards := giftcard.NewService(giftCardRepo, beneficiarySvc, fulfiller, giftcard.Config{
		Currency:       cfg.SettlementCurrency,
		ReconcileGrace: cfg.ReconcileGrace,
	})

	mailer := email.NewService(email.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	})
	notifier := notification.NewService(mailer, beneficiarySvc, cfg.FrontendURL)
	dispatcher.SetNotifier(notifier)
	giftCards.SetNotifier(notifier)

	maturer := commission.NewMaturer(commissionRepo, cfg.MaturationBatchSize)

	return &Services{
		Beneficiaries: beneficiarySvc,
		Balances:      balance.NewService(balanceRepo, ledgerRepo),
		Commissions: commission.NewService(commissionRepo, beneficiarySvc, commission.Config{
			PlatformAccountID:  platformAccount,
			PlatformFeePercent: cfg.PlatformFeePercent,
			DefaultHoldDays:    cfg.DefaultHoldDays,
		}),
		Maturer:   maturer,
		Payouts:   dispatcher,
		GiftCards: giftCards,
		Events:    gateway.NewEventRepository(db),
		Runner:    gateway.NewRunner(maturer, dispatcher, giftCards, database.NewLocker(rdb, cfg.SweepLockTTL)),
		Mailer:    mailer,
	}, nil
}

func platformAccountID(cfg *config.Config) (uuid.UUID, error) {
	if cfg.PlatformAccountID == "" {
		if cfg.IsProduction() {
			return uuid.Nil, fmt.Errorf("PLATFORM_ACCOUNT_ID is required in production")
		}
		log.Warn().Msg("PLATFORM_ACCOUNT_ID not set, platform fees are not posted to the ledger")
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(cfg.PlatformAccountID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid PLATFORM_ACCOUNT_ID: %w", err)
	}
	return id, nil
}
