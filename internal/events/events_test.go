package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type captureDispatcher struct {
	events []Event
	err    error
}

func (d *captureDispatcher) Dispatch(_ context.Context, evt Event) error {
	d.events = append(d.events, evt)
	return d.err
}

func TestBusEmitDispatches(t *testing.T) {
	dispatcher := &captureDispatcher{}
	bus := &Bus{Dispatcher: dispatcher, Log: zerolog.Nop()}

	err := bus.Emit(context.Background(), TopicTokenClaimed, "code-1", map[string]any{"points": 245})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(dispatcher.events))
	}

	evt := dispatcher.events[0]
	if evt.Topic != TopicTokenClaimed || evt.AggregateID != "code-1" {
		t.Fatalf("event = %+v", evt)
	}
	var payload map[string]any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["points"] != float64(245) {
		t.Fatalf("payload = %v", payload)
	}
}

func TestBusEmitSwallowsDispatchErrors(t *testing.T) {
	dispatcher := &captureDispatcher{err: errors.New("queue down")}
	bus := &Bus{Dispatcher: dispatcher, Log: zerolog.Nop()}

	if err := bus.Emit(context.Background(), TopicTokenIssued, "code-2", nil); err != nil {
		t.Fatalf("emit should not fail on dispatch error, got %v", err)
	}
}

func TestBusEmitRejectsUnmarshalablePayload(t *testing.T) {
	bus := &Bus{Log: zerolog.Nop()}
	if err := bus.Emit(context.Background(), TopicTokenIssued, "x", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}
