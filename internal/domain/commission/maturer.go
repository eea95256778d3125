package commission

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/partnerlink/settlement-api/internal/pkg/metrics"
)

// MaturationStore advances one chunk of eligible commissions.
type MaturationStore interface {
	MatureBatch(ctx context.Context, now time.Time, limit int) ([]*Commission, error)
}

// Maturer runs the PENDING -> PROCEED sweep. Each chunk commits on its own,
// so an interrupted sweep leaves the rest for the next run.
type Maturer struct {
	store     MaturationStore
	batchSize int
}

func NewMaturer(store MaturationStore, batchSize int) *Maturer {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Maturer{store: store, batchSize: batchSize}
}

func (m *Maturer) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var res SweepResult
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rows, err := m.store.MatureBatch(ctx, now, m.batchSize)
		if err != nil {
			log.Error().Err(err).Int("matured_so_far", res.Matured).Msg("Maturation chunk failed")
			return res, err
		}
		res.Chunks++
		res.Matured += len(rows)
		for _, c := range rows {
			res.Amount += c.NetAmount
		}
		metrics.CommissionsMatured.Add(float64(len(rows)))

		if len(rows) < m.batchSize {
			break
		}
	}

	log.Info().
		Int("matured", res.Matured).
		Int64("amount", res.Amount).
		Int("chunks", res.Chunks).
		Msg("Maturation sweep finished")
	return res, nil
}
