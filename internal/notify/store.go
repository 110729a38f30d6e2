package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no webhook endpoint matches the lookup.
var ErrNotFound = errors.New("notify: endpoint not found")

// Endpoint is a merchant-registered webhook subscription.
type Endpoint struct {
	ID        string
	URL       string
	Secret    string
	Topics    []string
	Active    bool
	CreatedAt time.Time
}

// Delivery records one dispatch attempt against an endpoint.
type Delivery struct {
	ID         string
	EndpointID string
	EventID    string
	Topic      string
	StatusCode int
	Success    bool
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}

// Store persists webhook endpoints and their delivery history.
type Store struct {
	Pool *pgxpool.Pool
}

// CreateEndpoint registers a new endpoint.
func (s *Store) CreateEndpoint(ctx context.Context, e Endpoint) (Endpoint, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	const stmt = `
INSERT INTO webhook_endpoints (id, url, secret, topics, active)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`

	err := s.Pool.QueryRow(ctx, stmt, e.ID, e.URL, e.Secret, e.Topics, e.Active).Scan(&e.CreatedAt)
	if err != nil {
		return Endpoint{}, fmt.Errorf("create endpoint: %w", err)
	}
	return e, nil
}

// ListEndpoints returns every registered endpoint, newest first.
func (s *Store) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	const query = `
SELECT id, url, secret, topics, active, created_at
FROM webhook_endpoints
ORDER BY created_at DESC`

	rows, err := s.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// EndpointsForTopic returns active endpoints subscribed to the topic.
func (s *Store) EndpointsForTopic(ctx context.Context, topic string) ([]Endpoint, error) {
	const query = `
SELECT id, url, secret, topics, active, created_at
FROM webhook_endpoints
WHERE active AND $1 = ANY(topics)`

	rows, err := s.Pool.Query(ctx, query, topic)
	if err != nil {
		return nil, fmt.Errorf("endpoints for topic: %w", err)
	}
	defer rows.Close()
	return scanEndpoints(rows)
}

// EndpointByID fetches a single endpoint.
func (s *Store) EndpointByID(ctx context.Context, id string) (Endpoint, error) {
	const query = `
SELECT id, url, secret, topics, active, created_at
FROM webhook_endpoints
WHERE id = $1`

	var e Endpoint
	err := s.Pool.QueryRow(ctx, query, id).Scan(&e.ID, &e.URL, &e.Secret, &e.Topics, &e.Active, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Endpoint{}, ErrNotFound
		}
		return Endpoint{}, fmt.Errorf("endpoint by id: %w", err)
	}
	return e, nil
}

// DeleteEndpoint removes an endpoint. Pending deliveries for it will fail
// their lookup and stop retrying.
func (s *Store) DeleteEndpoint(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM webhook_endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery appends a delivery attempt row.
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	const stmt = `
INSERT INTO webhook_deliveries (id, endpoint_id, event_id, topic, status_code, success, error, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`

	_, err := s.Pool.Exec(ctx, stmt, d.ID, d.EndpointID, d.EventID, d.Topic, d.StatusCode, d.Success, d.Error, d.DurationMS)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

func scanEndpoints(rows pgx.Rows) ([]Endpoint, error) {
	var out []Endpoint
	for rows.Next() {
		var e Endpoint
		if err := rows.Scan(&e.ID, &e.URL, &e.Secret, &e.Topics, &e.Active, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
