package httphandler

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

// APIKeyHeader carries the shared S2S key.
const APIKeyHeader = "X-API-Key"

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
// Query strings and headers are never logged; they may carry credentials.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
				)
				writeError(w, http.StatusInternalServerError, codeInternal, "internal server error", false)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds every request's context. Handlers observe the
// deadline through the store and client calls they make.
func timeoutMiddleware(timeout time.Duration, next http.Handler) http.Handler {
	if timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// apiKeyMiddleware admits requests whose X-API-Key matches any configured key.
// Keys are compared as SHA-256 digests in constant time so neither content
// nor length leaks through timing.
func apiKeyMiddleware(keys []string, next http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(APIKeyHeader)
		if presented == "" || !matchesAny(digests, presented) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid API key", false)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func matchesAny(digests [][sha256.Size]byte, presented string) bool {
	sum := sha256.Sum256([]byte(presented))
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(sum[:], digests[i][:])
	}
	return match == 1
}

// admissionMiddleware caps concurrent requests at the semaphore's weight. A
// request waits at most wait for a slot and is then turned away with a
// retryable 503, so a burst queues in clients instead of on the database pool.
func admissionMiddleware(sem *semaphore.Weighted, wait time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		err := sem.Acquire(ctx, 1)
		cancel()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, codeServerBusy, "server busy, retry shortly", true)
			return
		}
		defer sem.Release(1)

		next.ServeHTTP(w, r)
	})
}
