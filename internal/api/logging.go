package api

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
)

const requestIDHeader = "X-Request-ID"

// withRequestLogging tags each request with an ID, attaches a request-scoped
// logger to the context and logs the outcome once the handler returns.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = ksuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)

		logger := s.logger.With().Str("request_id", requestID).Logger()
		ctx := logger.WithContext(r.Context())

		start := time.Now()
		recorder := newStatusRecorder(w)
		next.ServeHTTP(recorder, r.WithContext(ctx))

		event := logger.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = logger.Error()
		} else if r.URL.Path == "/metrics" || r.URL.Path == "/api/health" {
			event = logger.Debug()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Int("bytes", recorder.bytes).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// loggerFrom returns the request logger, or the server logger when the
// context carries none.
func (s *Server) loggerFrom(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}
