package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Summary aggregates earn-token activity over a trailing window,
// optionally scoped to one merchant.
type Summary struct {
	Window        string    `json:"window"`
	MerchantID    string    `json:"merchant_id,omitempty"`
	Issued        int64     `json:"issued"`
	Claimed       int64     `json:"claimed"`
	Expired       int64     `json:"expired"`
	Open          int64     `json:"open"`
	PointsAwarded int64     `json:"points_awarded"`
	ClaimRate     float64   `json:"claim_rate"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Service computes earn summaries with a short redis cache in front so the
// console can poll freely without hammering Postgres.
type Service struct {
	Pool     *pgxpool.Pool
	RDB      *redis.Client
	CacheTTL time.Duration
	Now      func() time.Time
	Log      zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EarnSummary returns the summary for the trailing window, serving from
// cache when fresh. Cache failures fall through to the database.
func (s *Service) EarnSummary(ctx context.Context, window time.Duration, merchantID string) (Summary, error) {
	key := fmt.Sprintf("analytics:earn:%s:%s", window, merchantID)

	if s.RDB != nil {
		if raw, err := s.RDB.Get(ctx, key).Bytes(); err == nil {
			var cached Summary
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	summary, err := s.compute(ctx, window, merchantID)
	if err != nil {
		return Summary{}, err
	}

	if s.RDB != nil {
		if raw, err := json.Marshal(summary); err == nil {
			if err := s.RDB.Set(ctx, key, raw, s.CacheTTL).Err(); err != nil {
				s.Log.Warn().Err(err).Msg("cache earn summary")
			}
		}
	}
	return summary, nil
}

// Warm recomputes and caches the default summary. Called periodically by
// the worker so console reads mostly hit cache.
func (s *Service) Warm(ctx context.Context, window time.Duration) error {
	key := fmt.Sprintf("analytics:earn:%s:", window)
	summary, err := s.compute(ctx, window, "")
	if err != nil {
		return err
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return s.RDB.Set(ctx, key, raw, s.CacheTTL).Err()
}

func (s *Service) compute(ctx context.Context, window time.Duration, merchantID string) (Summary, error) {
	now := s.now()
	since := now.Add(-window)

	const query = `
SELECT
  COUNT(*),
  COUNT(*) FILTER (WHERE claimed_at IS NOT NULL),
  COUNT(*) FILTER (WHERE claimed_at IS NULL AND expires_at <= $2),
  COUNT(*) FILTER (WHERE claimed_at IS NULL AND expires_at > $2),
  COALESCE(SUM(points) FILTER (WHERE claimed_at IS NOT NULL), 0)
FROM earn_tokens
WHERE created_at >= $1
  AND ($3 = '' OR merchant_id = $3::uuid)`

	var out Summary
	err := s.Pool.QueryRow(ctx, query, since, now, merchantID).Scan(
		&out.Issued, &out.Claimed, &out.Expired, &out.Open, &out.PointsAwarded,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("earn summary: %w", err)
	}

	out.Window = window.String()
	out.MerchantID = merchantID
	out.GeneratedAt = now
	if out.Issued > 0 {
		out.ClaimRate = float64(out.Claimed) / float64(out.Issued)
	}
	return out, nil
}
