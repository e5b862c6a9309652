package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore persists raw lead events. Rows are immutable once written.
type EventStore struct {
	pool pgxQuerier
}

// NewEventStore builds an event store over the pgx pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &EventStore{pool: pool}
}

func newEventStoreWithQuerier(q pgxQuerier) *EventStore {
	if q == nil {
		panic("leads: querier required")
	}
	return &EventStore{pool: q}
}

// Record inserts the raw event. The generated id is written back to evt.
func (s *EventStore) Record(ctx context.Context, evt *Event) error {
	if evt == nil {
		return fmt.Errorf("leads: event required")
	}
	id := uuid.New()
	if evt.ID != "" {
		parsed, err := uuid.Parse(evt.ID)
		if err != nil {
			return fmt.Errorf("leads: invalid event id: %w", err)
		}
		id = parsed
	}
	receivedAt := evt.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO lead_events (id, org_id, source, mode, idempotency_key, content_type, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.pool.Exec(ctx, query,
		id,
		evt.OrgID,
		evt.Source,
		evt.Mode,
		evt.IdempotencyKey,
		evt.ContentType,
		evt.Payload,
		receivedAt,
	); err != nil {
		return fmt.Errorf("leads: record event: %w", err)
	}
	evt.ID = id.String()
	return nil
}
