package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/domain/commission"
	"github.com/partnerlink/settlement-api/internal/domain/giftcard"
	"github.com/partnerlink/settlement-api/internal/domain/payout"
	"github.com/partnerlink/settlement-api/internal/pkg/metrics"
)

type Job string

const (
	JobMaturation Job = "maturation"
	JobPayouts    Job = "payouts"
	JobReconcile  Job = "reconcile"
)

var ErrUnknownJob = errors.New("unknown job")

func (j Job) Valid() bool {
	switch j {
	case JobMaturation, JobPayouts, JobReconcile:
		return true
	}
	return false
}

type Maturer interface {
	Sweep(ctx context.Context, now time.Time) (commission.SweepResult, error)
}

type PayoutSweeper interface {
	Sweep(ctx context.Context) (payout.SweepReport, error)
	Reconcile(ctx context.Context) (payout.SweepReport, error)
}

type GiftCardReconciler interface {
	Reconcile(ctx context.Context) (giftcard.ReconcileReport, error)
}

// Locker guards a job against overlapping runs.
type Locker interface {
	Acquire(ctx context.Context, name string) (func(), bool, error)
}

type JobError struct {
	BeneficiaryID uuid.UUID `json:"beneficiary_id"`
	Reason        string    `json:"reason"`
}

// JobReport is the outcome of one scheduled run.
type JobReport struct {
	Job       Job        `json:"job"`
	Skipped   bool       `json:"skipped,omitempty"`
	Processed int        `json:"processed"`
	Pending   int        `json:"pending"`
	Failed    int        `json:"failed"`
	Errors    []JobError `json:"errors"`
}

// Runner executes the settlement sweeps for both the cron endpoints and the
// in-process scheduler.
type Runner struct {
	maturer   Maturer
	payouts   PayoutSweeper
	giftCards GiftCardReconciler
	locker    Locker
	now       func() time.Time
}

func NewRunner(maturer Maturer, payouts PayoutSweeper, giftCards GiftCardReconciler, locker Locker) *Runner {
	return &Runner{
		maturer:   maturer,
		payouts:   payouts,
		giftCards: giftCards,
		locker:    locker,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes job unless another run holds its lock, in which case the
// report is marked Skipped.
func (r *Runner) Run(ctx context.Context, job Job) (*JobReport, error) {
	report := &JobReport{Job: job, Errors: []JobError{}}

	if !job.Valid() {
		return nil, ErrUnknownJob
	}

	release, ok, err := r.locker.Acquire(ctx, string(job))
	if err != nil {
		// the lock only avoids duplicate work; row guards keep a concurrent run safe
		log.Warn().Err(err).Str("job", string(job)).Msg("Sweep lock unavailable, running unguarded")
		ok = true
	}
	if !ok {
		report.Skipped = true
		log.Info().Str("job", string(job)).Msg("Sweep already running, skipped")
		return report, nil
	}
	defer release()

	start := time.Now()
	defer func() {
		metrics.SweepDuration.WithLabelValues(string(job)).Observe(time.Since(start).Seconds())
	}()

	switch job {
	case JobMaturation:
		res, err := r.maturer.Sweep(ctx, r.now())
		report.Processed = res.Matured
		if err != nil {
			return report, err
		}
	case JobPayouts:
		res, err := r.payouts.Sweep(ctx)
		report.addPayouts(res)
		if err != nil {
			return report, err
		}
	case JobReconcile:
		res, err := r.payouts.Reconcile(ctx)
		report.addPayouts(res)
		if err != nil {
			return report, err
		}
		gc, err := r.giftCards.Reconcile(ctx)
		report.Processed += gc.Processed
		report.Pending += gc.Pending
		report.Failed += gc.Failed
		for _, e := range gc.Errors {
			report.Errors = append(report.Errors, JobError{BeneficiaryID: e.BeneficiaryID, Reason: e.Reason})
		}
		if err != nil {
			return report, err
		}
	}

	log.Info().
		Str("job", string(job)).
		Int("processed", report.Processed).
		Int("pending", report.Pending).
		Int("failed", report.Failed).
		Dur("duration", time.Since(start)).
		Msg("Sweep finished")
	return report, nil
}

func (r *JobReport) addPayouts(res payout.SweepReport) {
	r.Processed += res.Processed
	r.Pending += res.Pending
	r.Failed += res.Failed
	for _, e := range res.Errors {
		r.Errors = append(r.Errors, JobError{BeneficiaryID: e.BeneficiaryID, Reason: e.Reason})
	}
}
