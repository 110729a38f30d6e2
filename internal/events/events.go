package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Topics published by the earn-token flows.
const (
	TopicTokenIssued  = "token.issued"
	TopicTokenClaimed = "token.claimed"
)

// Event is a persisted domain event. Rows are the source of truth for
// webhook deliveries and analytics backfills.
type Event struct {
	ID          string
	Topic       string
	AggregateID string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// Dispatcher pushes a persisted event toward its subscribers. Delivery is
// asynchronous; failures here never fail the emitting request.
type Dispatcher interface {
	Dispatch(ctx context.Context, evt Event) error
}

// Store persists domain events in Postgres.
type Store struct {
	Pool *pgxpool.Pool
}

// Insert writes an event row and returns it with its generated id.
func (s *Store) Insert(ctx context.Context, e Event) (Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	const stmt = `
INSERT INTO domain_events (id, topic, aggregate_id, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`

	if _, err := s.Pool.Exec(ctx, stmt, e.ID, e.Topic, e.AggregateID, e.Payload, e.CreatedAt); err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

// Recent lists the latest events for a topic, newest first.
func (s *Store) Recent(ctx context.Context, topic string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `
SELECT id, topic, aggregate_id, payload, created_at
FROM domain_events
WHERE topic = $1
ORDER BY created_at DESC
LIMIT $2`

	rows, err := s.Pool.Query(ctx, query, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Bus records events and hands them to the dispatcher. Both collaborators
// are optional so callers degrade gracefully in slim deployments.
type Bus struct {
	Store      *Store
	Dispatcher Dispatcher
	Log        zerolog.Logger
}

// Emit persists the event, then dispatches it. Dispatch failures are
// logged, not returned: the emitting operation already committed.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	evt := Event{Topic: topic, AggregateID: aggregateID, Payload: raw}

	if b.Store != nil {
		evt, err = b.Store.Insert(ctx, evt)
		if err != nil {
			return err
		}
	}
	if b.Dispatcher != nil {
		if err := b.Dispatcher.Dispatch(ctx, evt); err != nil {
			b.Log.Warn().Err(err).Str("topic", topic).Str("event_id", evt.ID).Msg("dispatch event")
		}
	}
	return nil
}
