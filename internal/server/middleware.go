// Provides request logging, throttling and serialization middleware.

package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/maruel/ksid"
	"github.com/whintake/whintake/internal/metrics"
	"github.com/whintake/whintake/internal/server/ratelimit"
	"github.com/whintake/whintake/internal/server/reqctx"
)

// statusRecorder remembers the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// LogRequests assigns a request id, logs each request once it completes and
// records its latency. m may be nil. The id and client IP reach the log line
// through the context, see reqctx.LogHandler.
func LogRequests(m *metrics.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := ksid.NewID()
		ip := reqctx.GetClientIP(r)
		ctx := reqctx.WithRequestID(reqctx.WithClientIP(r.Context(), ip), id)
		w.Header().Set("X-Request-Id", id.String())
		rec := &statusRecorder{ResponseWriter: w}
		r2 := r.WithContext(ctx)
		next.ServeHTTP(rec, r2)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		d := time.Since(start)
		if m != nil {
			route := r2.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
		}
		slog.InfoContext(ctx, "http", "m", r.Method, "path", r.URL.Path, "s", status, "dur", d.Round(time.Millisecond))
	})
}

// RateLimit rejects state-changing requests above the configured rate with
// 429. A nil cfg disables throttling.
func RateLimit(cfg *ratelimit.Config, next http.Handler) http.Handler {
	if cfg == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := cfg.Match(r.Method, r.URL.Path)
		if tier == nil {
			next.ServeHTTP(w, r)
			return
		}
		result := tier.Limiter.Allow(ratelimit.BuildKey(reqctx.GetClientIP(r), tier.Name))
		rw := ratelimit.NewResponseWriter(w, result)
		if !result.Allowed {
			slog.WarnContext(r.Context(), "Rate limited", "path", r.URL.Path, "retry_after", result.RetryAfter)
			writeRateLimitError(rw, result)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

// Serialize runs API requests one at a time so every request observes the
// effects of all requests completed before it. The health check bypasses
// the lock.
func Serialize(mu *sync.Mutex, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		next.ServeHTTP(w, r)
	})
}
