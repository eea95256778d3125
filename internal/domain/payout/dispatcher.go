package payout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/domain/beneficiary"
	"github.com/partnerlink/settlement-api/internal/pkg/apperr"
	"github.com/partnerlink/settlement-api/internal/pkg/metrics"
)

// Store is the persistence the dispatcher depends on.
type Store interface {
	Claim(ctx context.Context, req ClaimRequest) (*Batch, error)
	MarkSubmitted(ctx context.Context, batchID uuid.UUID) error
	RecordExternalID(ctx context.Context, batchID uuid.UUID, externalID string) error
	RecordInstructions(ctx context.Context, batchID uuid.UUID, key string) error
	Confirm(ctx context.Context, batchID uuid.UUID, externalID string) (*Batch, bool, error)
	Fail(ctx context.Context, batchID uuid.UUID, reason string) (*Batch, bool, error)
	Get(ctx context.Context, batchID uuid.UUID) (*Batch, error)
	ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]*Batch, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Batch, error)
	ListPayable(ctx context.Context, minAmount int64, limit int) ([]uuid.UUID, error)
}

// BeneficiaryReader loads payout destinations.
type BeneficiaryReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*beneficiary.Beneficiary, error)
}

// Notifier hears about batches that reached a terminal state.
type Notifier interface {
	PayoutResolved(ctx context.Context, beneficiaryID uuid.UUID, res *Result)
}

type Config struct {
	Currency       string
	MinAmount      int64
	ReconcileGrace time.Duration
	SweepLimit     int
}

// Dispatcher claims matured commissions into a batch, calls the rail, and
// settles or releases the batch according to the outcome.
type Dispatcher struct {
	store         Store
	beneficiaries BeneficiaryReader
	rails         map[beneficiary.PayoutMethod]Rail
	cfg           Config
	notifier      Notifier
	now           func() time.Time
}

func NewDispatcher(store Store, beneficiaries BeneficiaryReader, cfg Config, rails ...Rail) *Dispatcher {
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = 1000
	}
	d := &Dispatcher{
		store:         store,
		beneficiaries: beneficiaries,
		rails:         make(map[beneficiary.PayoutMethod]Rail, len(rails)),
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, r := range rails {
		d.rails[r.Method()] = r
	}
	return d
}

func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notifier = n
}

func (d *Dispatcher) notify(ctx context.Context, b *Batch) {
	if d.notifier != nil {
		d.notifier.PayoutResolved(ctx, b.BeneficiaryID, resultOf(b))
	}
}

// Dispatch pays out the beneficiary's matured commissions. An ambiguous rail
// response returns the SUBMITTED batch together with an
// ExternalTransferAmbiguous error; only the reconciler resolves it.
func (d *Dispatcher) Dispatch(ctx context.Context, beneficiaryID uuid.UUID) (*Result, error) {
	ben, err := d.beneficiaries.GetByID(ctx, beneficiaryID)
	if err != nil {
		return nil, err
	}
	if ben.PayoutMethod == beneficiary.MethodPlatformBalance {
		return nil, ErrNotDispatchable
	}
	rail, ok := d.rails[ben.PayoutMethod]
	if !ok {
		return nil, ErrRailUnavailable.WithMessage("%s is not configured", ben.PayoutMethod)
	}
	if err := beneficiary.ValidateDestination(ben.PayoutMethod, beneficiary.PayoutDetails{
		ConnectAccountID: ben.ConnectAccountID.String,
		AggregatorEmail:  ben.AggregatorEmail.String,
		BankAccountName:  ben.BankAccountName.String,
		BankIBAN:         ben.BankIBAN.String,
	}); err != nil {
		return nil, err
	}

	batch, err := d.store.Claim(ctx, ClaimRequest{
		BeneficiaryID: ben.ID,
		Method:        ben.PayoutMethod,
		Currency:      d.cfg.Currency,
		MinAmount:     d.cfg.MinAmount,
	})
	if err != nil {
		return nil, err
	}
	metrics.PayoutBatches.WithLabelValues(string(batch.Method), string(StatusCreated)).Inc()
	log.Info().
		Str("batch_id", batch.ID.String()).
		Str("beneficiary_id", ben.ID.String()).
		Str("method", string(batch.Method)).
		Int64("amount", batch.TotalAmount).
		Int64("claimed", batch.ClaimedAmount).
		Int("commissions", len(batch.CommissionIDs)).
		Msg("Payout batch claimed")

	req := TransferRequest{
		BatchID:       batch.ID,
		BeneficiaryID: ben.ID,
		Destination:   ben.Destination(),
		AccountName:   ben.BankAccountName.String,
		Amount:        batch.TotalAmount,
		Currency:      batch.Currency,
		CommissionIDs: batch.CommissionIDs,
		CreatedAt:     batch.CreatedAt,
	}
	if ben.PayoutMethod == beneficiary.MethodManualBank {
		return d.exportManual(ctx, rail, batch, req)
	}
	return d.submit(ctx, rail, batch, req)
}

func (d *Dispatcher) submit(ctx context.Context, rail Rail, batch *Batch, req TransferRequest) (*Result, error) {
	if err := d.store.MarkSubmitted(ctx, batch.ID); err != nil {
		return nil, err
	}
	batch.Status = StatusSubmitted

	res, err := rail.Transfer(ctx, req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindExternalTransferAmbiguous {
			metrics.PayoutBatches.WithLabelValues(string(batch.Method), "AMBIGUOUS").Inc()
			log.Warn().Err(err).
				Str("batch_id", batch.ID.String()).
				Str("beneficiary_id", batch.BeneficiaryID.String()).
				Msg("Payout outcome unknown, held for reconciliation")
			return resultOf(batch), err
		}
		return d.fail(ctx, batch, apperr.ReasonOf(err), err)
	}
	return d.apply(ctx, batch, res)
}

// apply settles a batch from a definitive rail answer.
func (d *Dispatcher) apply(ctx context.Context, batch *Batch, res *TransferResult) (*Result, error) {
	switch res.Status {
	case TransferPaid:
		return d.confirm(ctx, batch, res.ExternalID)
	case TransferFailed:
		return d.fail(ctx, batch, res.FailureReason, apperr.ExternalTransfer(res.FailureReason, nil))
	default:
		if res.ExternalID != "" {
			if err := d.store.RecordExternalID(ctx, batch.ID, res.ExternalID); err != nil {
				return resultOf(batch), err
			}
			batch.ExternalTransferID.String, batch.ExternalTransferID.Valid = res.ExternalID, true
		}
		log.Info().
			Str("batch_id", batch.ID.String()).
			Str("external_transfer_id", res.ExternalID).
			Msg("Payout accepted by rail, awaiting confirmation")
		return resultOf(batch), nil
	}
}

func (d *Dispatcher) confirm(ctx context.Context, batch *Batch, externalID string) (*Result, error) {
	settled, changed, err := d.store.Confirm(ctx, batch.ID, externalID)
	if err != nil {
		// money moved; reconciliation finds the transfer by batch id
		log.Error().Err(err).
			Str("batch_id", batch.ID.String()).
			Str("external_transfer_id", externalID).
			Msg("Failed to settle confirmed payout")
		return resultOf(batch), err
	}
	settled.CommissionIDs = batch.CommissionIDs
	if changed {
		metrics.PayoutBatches.WithLabelValues(string(settled.Method), string(StatusConfirmed)).Inc()
		metrics.PayoutAmount.WithLabelValues(string(settled.Method)).Add(float64(settled.TotalAmount))
		log.Info().
			Str("batch_id", settled.ID.String()).
			Str("beneficiary_id", settled.BeneficiaryID.String()).
			Str("external_transfer_id", settled.ExternalTransferID.String).
			Int64("amount", settled.TotalAmount).
			Msg("Payout confirmed")
		d.notify(ctx, settled)
	}
	return resultOf(settled), nil
}

func (d *Dispatcher) fail(ctx context.Context, batch *Batch, reason string, cause error) (*Result, error) {
	if reason == "" {
		reason = "transfer_failed"
	}
	failed, changed, err := d.store.Fail(ctx, batch.ID, reason)
	if err != nil {
		log.Error().Err(err).Str("batch_id", batch.ID.String()).Msg("Failed to release payout batch")
		return resultOf(batch), err
	}
	failed.CommissionIDs = batch.CommissionIDs
	if changed {
		metrics.PayoutBatches.WithLabelValues(string(failed.Method), string(StatusFailed)).Inc()
		log.Warn().
			Str("batch_id", failed.ID.String()).
			Str("beneficiary_id", failed.BeneficiaryID.String()).
			Str("reason", reason).
			Msg("Payout failed, commissions released")
		d.notify(ctx, failed)
	}
	if cause == nil {
		return resultOf(failed), nil
	}
	return resultOf(failed), cause
}

func (d *Dispatcher) exportManual(ctx context.Context, rail Rail, batch *Batch, req TransferRequest) (*Result, error) {
	res, err := rail.Transfer(ctx, req)
	if err != nil {
		return d.fail(ctx, batch, apperr.ReasonOf(err), err)
	}
	if err := d.store.RecordInstructions(ctx, batch.ID, res.ExternalID); err != nil {
		return resultOf(batch), err
	}
	batch.InstructionKey.String, batch.InstructionKey.Valid = res.ExternalID, true
	log.Info().
		Str("batch_id", batch.ID.String()).
		Str("beneficiary_id", batch.BeneficiaryID.String()).
		Str("instructions", res.ExternalID).
		Msg("Manual payout instructions exported")
	return resultOf(batch), nil
}

// Sweep dispatches every payable beneficiary. A failure for one beneficiary
// never stops the others.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Errors: []SweepError{}}
	ids, err := d.store.ListPayable(ctx, d.cfg.MinAmount, d.cfg.SweepLimit)
	if err != nil {
		return report, err
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := d.Dispatch(ctx, id)
		if err != nil {
			var batchID uuid.UUID
			if res != nil {
				batchID = res.BatchID
			}
			report.fail(id, batchID, apperr.ReasonOf(err))
			log.Warn().Err(err).Str("beneficiary_id", id.String()).Msg("Payout sweep skipped beneficiary")
			continue
		}
		report.Processed++
	}

	log.Info().
		Int("processed", report.Processed).
		Int("failed", report.Failed).
		Msg("Payout sweep finished")
	return report, nil
}

// Reconcile resolves batches left SUBMITTED by ambiguous responses or
// crashes, and releases claims that never reached the rail.
func (d *Dispatcher) Reconcile(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Errors: []SweepError{}}
	batches, err := d.store.ListStale(ctx, d.now().Add(-d.cfg.ReconcileGrace), d.cfg.SweepLimit)
	if err != nil {
		return report, err
	}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := d.reconcileBatch(ctx, b)
		if errors.Is(err, errTransferPending) {
			report.Pending++
			log.Debug().Str("batch_id", b.ID.String()).Msg("Payout batch still in progress on rail")
			continue
		}
		if err != nil {
			report.fail(b.BeneficiaryID, b.ID, apperr.ReasonOf(err))
			log.Warn().Err(err).Str("batch_id", b.ID.String()).Msg("Payout batch still unresolved")
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (d *Dispatcher) reconcileBatch(ctx context.Context, b *Batch) error {
	if b.Status == StatusCreated {
		// the rail is only called after SUBMITTED is recorded
		_, err := d.releaseOnly(ctx, b, "stale_claim")
		return err
	}

	rail, ok := d.rails[b.Method]
	if !ok {
		return ErrRailUnavailable.WithMessage("%s is not configured", b.Method)
	}
	res, err := rail.Lookup(ctx, b.ID)
	switch {
	case errors.Is(err, ErrTransferNotFound):
		_, err = d.releaseOnly(ctx, b, "transfer_not_found")
		return err
	case err != nil:
		return apperr.ExternalTransferAmbiguous("lookup_failed", err)
	}

	switch res.Status {
	case TransferPaid:
		_, err = d.confirm(ctx, b, res.ExternalID)
		return err
	case TransferFailed:
		_, err = d.releaseOnly(ctx, b, res.FailureReason)
		return err
	}
	return errTransferPending
}

func (d *Dispatcher) releaseOnly(ctx context.Context, b *Batch, reason string) (*Result, error) {
	return d.fail(ctx, b, reason, nil)
}

// CompleteManual confirms a manual bank batch after an operator sent the money.
func (d *Dispatcher) CompleteManual(ctx context.Context, batchID uuid.UUID, reference string) (*Result, error) {
	b, err := d.manualBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return d.confirm(ctx, b, reference)
}

// FailManual releases a manual bank batch the operator could not execute.
func (d *Dispatcher) FailManual(ctx context.Context, batchID uuid.UUID, reason string) (*Result, error) {
	b, err := d.manualBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return d.releaseOnly(ctx, b, reason)
}

func (d *Dispatcher) manualBatch(ctx context.Context, batchID uuid.UUID) (*Batch, error) {
	b, err := d.store.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Method != beneficiary.MethodManualBank {
		return nil, ErrNotManual
	}
	return b, nil
}

// ConfirmExternal applies a rail's success notification. Repeats are no-ops.
func (d *Dispatcher) ConfirmExternal(ctx context.Context, batchID uuid.UUID, externalID string) (*Result, error) {
	b, err := d.store.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return d.confirm(ctx, b, externalID)
}

// FailExternal applies a rail's failure notification. Repeats are no-ops.
func (d *Dispatcher) FailExternal(ctx context.Context, batchID uuid.UUID, reason string) (*Result, error) {
	b, err := d.store.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return d.releaseOnly(ctx, b, reason)
}

// Get returns a batch with the location of its exported instructions, if any.
func (d *Dispatcher) Get(ctx context.Context, batchID uuid.UUID) (*Batch, error) {
	b, err := d.store.Get(ctx, batchID)
	if err != nil || !b.InstructionKey.Valid {
		return b, err
	}
	loc, ok := d.rails[b.Method].(InstructionLocator)
	if !ok {
		return b, nil
	}
	url, found, err := loc.InstructionURL(ctx, b.InstructionKey.String)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("batch_id", b.ID.String()).Msg("Instruction file lookup failed")
	case !found:
		log.Warn().Str("batch_id", b.ID.String()).Str("key", b.InstructionKey.String).Msg("Instruction file missing from storage")
	default:
		b.InstructionURL = url
	}
	return b, nil
}

func (d *Dispatcher) ListByBeneficiary(ctx context.Context, beneficiaryID uuid.UUID, limit, offset int) ([]*Batch, error) {
	return d.store.ListByBeneficiary(ctx, beneficiaryID, limit, offset)
}
