package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-earn/internal/common"
)

// NewLogger builds the process logger. Format "console" gets the
// human-readable writer; anything else stays JSON. Unknown levels fall
// back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// AccessLog emits one structured line per request once the handler finishes.
func AccessLog(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tap := newResponseTap(w)
			start := time.Now()
			next.ServeHTTP(tap, r)

			evt := l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routeOf(r)).
				Int("status", tap.status).
				Int64("bytes", tap.bytes).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("host", r.Host).
				Str("remote", r.RemoteAddr)
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				evt = evt.Str("trace_id", sc.TraceID().String())
			}
			if op, ok := common.OperatorID(r.Context()); ok {
				evt = evt.Str("operator_id", op)
			}
			evt.Msg("request")
		})
	}
}
