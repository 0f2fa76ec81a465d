package audit

import (
	"fmt"
	"net/http"
	"time"
)

// Middleware injects a Logger into each request context so downstream
// code can emit events through FromContext, and records a trail of the
// requests themselves.
type Middleware struct {
	logger Logger
	logAll bool
}

// NewMiddleware creates audit middleware around logger. When logAll is
// false only mutations and failed requests are recorded; successful
// reads stay out of the log.
func NewMiddleware(logger Logger, logAll bool) *Middleware {
	return &Middleware{logger: logger, logAll: logAll}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Handler wraps next with logger injection and request logging.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := WithLogger(r.Context(), m.logger)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		if !m.logAll && !shouldLogRequest(r, wrapped.statusCode) {
			return
		}

		event := buildBaseEvent(ctx, r, EventTypeHTTPRequest, statusForCode(wrapped.statusCode))
		event.Message = fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		event.Metadata["status_code"] = wrapped.statusCode
		event.Metadata["duration_ms"] = time.Since(start).Milliseconds()

		// A full request log must not fail the request it describes.
		_ = m.logger.Log(ctx, event)
	})
}

// shouldLogRequest reports whether a request is worth recording when
// logAll is off: every mutation, and anything that failed.
func shouldLogRequest(r *http.Request, statusCode int) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return true
	}
	return statusCode >= 400
}

// statusForCode maps an HTTP status code onto an event status.
func statusForCode(code int) EventStatus {
	switch {
	case code == http.StatusForbidden:
		return EventStatusDenied
	case code >= 400:
		return EventStatusFailure
	default:
		return EventStatusSuccess
	}
}
