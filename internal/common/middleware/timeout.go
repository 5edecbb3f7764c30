package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/httpx"
)

// SetTimeout bounds request handling with a context deadline. Handlers are
// expected to honor the deadline; if one returns after it without having
// written anything, a timeout envelope is sent on its behalf.
func SetTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			rw := httpx.NewResponseWriter(w)
			rw.Header().Set("X-Pawprint-Timeout", timeout.String())

			next.ServeHTTP(rw, r.WithContext(ctx))

			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Ctx(ctx).Error().Msg("request timed out")
				if !rw.Written() {
					httpx.ErrRequestTimeout().Send(rw)
				}
			}
		})
	}
}
