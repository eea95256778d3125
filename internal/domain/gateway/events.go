package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Provider names used as the processed_events namespace.
const (
	ProviderStripe      = "stripe"
	ProviderAggregator  = "aggregator"
	ProviderConversions = "conversions"
)

// EventStore remembers which webhook deliveries have been applied.
type EventStore interface {
	Seen(ctx context.Context, provider, eventID string) (bool, error)
	Record(ctx context.Context, provider, eventID, eventType string) error
}

type EventRepository struct {
	db *sqlx.DB
}

func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Seen(ctx context.Context, provider, eventID string) (bool, error) {
	var seen bool
	err := r.db.GetContext(ctx, &seen, `
		SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)
	`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("check processed event: %w", err)
	}
	return seen, nil
}

// Record marks an event applied. Recording twice is harmless.
func (r *EventRepository) Record(ctx context.Context, provider, eventID, eventType string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (provider, event_id, event_type, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, eventType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record processed event: %w", err)
	}
	return nil
}
