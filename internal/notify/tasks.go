package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-earn/internal/events"
	"github.com/noah-isme/backend-earn/internal/obs"
)

// TaskWebhookDeliver is the asynq task type for a single endpoint delivery.
const TaskWebhookDeliver = "webhook:deliver"

type deliverPayload struct {
	EndpointID string          `json:"endpoint_id"`
	EventID    string          `json:"event_id"`
	Topic      string          `json:"topic"`
	EventAt    time.Time       `json:"event_at"`
	Body       json.RawMessage `json:"body"`
}

// Scheduler fans a domain event out to one delivery task per subscribed
// endpoint. It implements events.Dispatcher.
type Scheduler struct {
	Client     *asynq.Client
	Store      *Store
	MaxRetries int
	Timeout    time.Duration
	Log        zerolog.Logger
}

// Dispatch enqueues a delivery task for every active endpoint subscribed
// to the event's topic.
func (s *Scheduler) Dispatch(ctx context.Context, evt events.Event) error {
	endpoints, err := s.Store.EndpointsForTopic(ctx, evt.Topic)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"id":         evt.ID,
		"topic":      evt.Topic,
		"created_at": evt.CreatedAt,
		"data":       evt.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	for _, ep := range endpoints {
		raw, err := json.Marshal(deliverPayload{
			EndpointID: ep.ID,
			EventID:    evt.ID,
			Topic:      evt.Topic,
			EventAt:    evt.CreatedAt,
			Body:       body,
		})
		if err != nil {
			return fmt.Errorf("marshal delivery task: %w", err)
		}
		task := asynq.NewTask(TaskWebhookDeliver, raw)
		_, err = s.Client.EnqueueContext(ctx, task,
			asynq.MaxRetry(s.MaxRetries),
			asynq.Timeout(s.Timeout),
			asynq.Queue("webhooks"),
		)
		if err != nil {
			s.Log.Error().Err(err).Str("endpoint_id", ep.ID).Str("topic", evt.Topic).Msg("enqueue webhook delivery")
			continue
		}
	}
	return nil
}

// DeliveryStore is the slice of Store the delivery handler needs.
type DeliveryStore interface {
	EndpointByID(ctx context.Context, id string) (Endpoint, error)
	RecordDelivery(ctx context.Context, d Delivery) error
}

// DeliveryHandler executes webhook delivery tasks on the worker. MaxAge
// bounds how stale an event may get before its deliveries are dropped
// rather than retried; receivers apply the same window to the signature
// timestamp for replay protection.
type DeliveryHandler struct {
	Store  DeliveryStore
	HTTP   *http.Client
	MaxAge time.Duration
	Now    func() time.Time
	Log    zerolog.Logger
}

func (h *DeliveryHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// ProcessTask delivers one webhook and records the attempt. A non-2xx
// response is returned as an error so asynq retries with backoff; a
// missing endpoint skips retries.
func (h *DeliveryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p deliverPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode delivery payload: %v: %w", err, asynq.SkipRetry)
	}

	if h.MaxAge > 0 && !p.EventAt.IsZero() && h.now().Sub(p.EventAt) > h.MaxAge {
		obs.WebhookDeliveriesTotal.WithLabelValues("stale").Inc()
		h.Log.Info().Str("event_id", p.EventID).Time("event_at", p.EventAt).Msg("event too old, dropping delivery")
		return nil
	}

	ep, err := h.Store.EndpointByID(ctx, p.EndpointID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.Log.Info().Str("endpoint_id", p.EndpointID).Msg("endpoint gone, dropping delivery")
			return nil
		}
		return err
	}

	start := h.now()
	statusCode, postErr := h.post(ctx, ep, p.Body, start.Unix())
	elapsed := time.Since(start)

	success := postErr == nil && statusCode >= 200 && statusCode < 300
	result := "success"
	if !success {
		result = "failure"
	}
	obs.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
	obs.WebhookAttemptLatency.WithLabelValues(result).Observe(float64(elapsed.Milliseconds()))

	errMsg := ""
	if postErr != nil {
		errMsg = postErr.Error()
	} else if !success {
		errMsg = fmt.Sprintf("endpoint returned %d", statusCode)
	}
	record := Delivery{
		EndpointID: ep.ID,
		EventID:    p.EventID,
		Topic:      p.Topic,
		StatusCode: statusCode,
		Success:    success,
		Error:      errMsg,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := h.Store.RecordDelivery(ctx, record); err != nil {
		h.Log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("record webhook delivery")
	}

	if !success {
		return fmt.Errorf("webhook delivery to %s failed: %s", ep.URL, errMsg)
	}
	return nil
}

func (h *DeliveryHandler) post(ctx context.Context, ep Endpoint, body []byte, unixTS int64) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TimestampHeader, fmt.Sprintf("%d", unixTS))
	req.Header.Set(SignatureHeader, Sign(ep.Secret, unixTS, body))

	resp, err := h.HTTP.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
