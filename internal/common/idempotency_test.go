package common

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testIdem(t *testing.T) Idempotency {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Idempotency{RDB: rdb, TTL: time.Minute}
}

func TestIdemReplayConflicts(t *testing.T) {
	idem := testIdem(t)

	var hits int
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/earn/tokens", nil)
	req.Header.Set("Idempotency-Key", "abc-123")

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d, want 201", first.Code)
	}

	replay := httptest.NewRequest(http.MethodPost, "/earn/tokens", nil)
	replay.Header.Set("Idempotency-Key", "abc-123")
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, replay)
	if second.Code != http.StatusConflict {
		t.Fatalf("replay status = %d, want 409", second.Code)
	}
	if hits != 1 {
		t.Fatalf("handler ran %d times, want 1", hits)
	}
}

func TestIdemWithoutKeyPassesThrough(t *testing.T) {
	idem := testIdem(t)

	var hits int
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/earn/tokens", nil))
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
	}
	if hits != 2 {
		t.Fatalf("handler ran %d times, want 2", hits)
	}
}
