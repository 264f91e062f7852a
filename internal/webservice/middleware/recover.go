package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/reearth/cms-items-api/internal/webservice/handlers"
)

// Recover turns panics of next into INTERNAL_ERROR responses.
// http.ErrAbortHandler panics are propagated.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.Error("Recovered from panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
			handlers.WriteInternalError(w)
		}()

		next.ServeHTTP(w, r)
	})
}
