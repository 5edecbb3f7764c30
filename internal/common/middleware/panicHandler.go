// Package middleware provides the HTTP middleware stack of the proxy: request
// logging with request ids, panic recovery and request deadlines. Failures
// produced here are written as failure envelopes like any other.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/httpx"
)

// PanicHandler recovers from panics in HTTP handlers, logs the panic with its
// stack trace and answers with an unknown-error envelope if nothing was
// written yet.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("stack_trace", string(debug.Stack())).
					Msg("panic occurred")

				if !rw.Written() {
					httpx.ErrApplicationError().Send(rw)
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
