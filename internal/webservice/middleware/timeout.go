package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout sets a deadline of d on the context of each request.
//
// Handlers observe the deadline through the request context, so an expired request is answered
// by the handler error path with a JSON envelope. A non positive d disables the deadline.
func Timeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
