package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// routeOf reports the matched chi pattern for labelling. The pattern only
// settles after routing, so callers read it once the handler has returned.
// Unmatched requests fall back to the raw path.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// responseTap captures what the handler wrote without changing it.
type responseTap struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func newResponseTap(w http.ResponseWriter) *responseTap {
	return &responseTap{ResponseWriter: w, status: http.StatusOK}
}

func (t *responseTap) WriteHeader(code int) {
	t.status = code
	t.ResponseWriter.WriteHeader(code)
}

func (t *responseTap) Write(p []byte) (int, error) {
	n, err := t.ResponseWriter.Write(p)
	t.bytes += int64(n)
	return n, err
}

// Instrument counts requests and observes latency per method and route.
func Instrument(m *HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tap := newResponseTap(w)
			m.InFlight.Inc()
			start := time.Now()
			next.ServeHTTP(tap, r)
			m.InFlight.Dec()

			route := routeOf(r)
			m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(tap.status)).Inc()
			m.Latency.WithLabelValues(r.Method, route).Observe(float64(time.Since(start)) / float64(time.Millisecond))
		})
	}
}

// Trace opens a server span per request and renames it to the matched
// route once routing has settled.
func Trace(next http.Handler) http.Handler {
	tracer := otel.Tracer("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method)
		defer span.End()

		tap := newResponseTap(w)
		next.ServeHTTP(tap, r.WithContext(ctx))

		route := routeOf(r)
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", tap.status),
		)
		if tap.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(tap.status))
		}
	})
}
