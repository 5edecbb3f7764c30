package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/httpx"
	"github.com/csfam/pawprint/internal/common/logtrace"
	"github.com/csfam/pawprint/internal/common/uuid"
)

// RequestIDHeader carries the request id back to the client.
const RequestIDHeader = "X-Pawprint-Request-ID"

// RequestLogger attaches a request id to the request context and its logger,
// echoes it in the response header and logs the start and end of the request.
// Query strings are not logged since they may carry tokens.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := logtrace.RequestIdFromContext(r.Context())
		if requestID == "" {
			requestID = uuid.NewRequestID()
		}
		ctx := logtrace.WithRequestID(r.Context(), requestID)
		ctx = log.With().Str("request_id", requestID).Logger().WithContext(ctx)

		w.Header().Set(RequestIDHeader, requestID)
		rw := httpx.NewResponseWriter(w)

		log.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_ip", r.RemoteAddr).
			Str("proto", r.Proto).
			Msg("incoming request")

		defer func() {
			log.Ctx(ctx).Info().
				Int("status", rw.Status()).
				Str("duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds())).
				Msg("request completed")
		}()

		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}
