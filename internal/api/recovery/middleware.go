// Package recovery turns handler panics into the service's standard 500 body.
package recovery

import (
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/KushagraAgarwal525/racoon/internal/api/respond"
)

// Middleware recovers a panicking handler, logs it with the matched route and replies 500.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			ev := log.Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Bytes("stack", debug.Stack())
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					ev = ev.Str("route", tpl)
				}
			}
			if uid := r.URL.Query().Get("userId"); uid != "" {
				ev = ev.Str("user_id", uid)
			}
			ev.Msg("handler panic recovered")

			respond.WriteInternalError(w, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}
