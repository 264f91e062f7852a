// Package middleware provides the HTTP middlewares wrapping the service endpoints.
package middleware

import (
	"net/http"
	"sync"

	"github.com/rs/cors"
)

const corsMaxAge = 86400

// OriginProvider gives the allowed CORS origin. An empty origin disables CORS.
type OriginProvider func() string

// CORS handles cross-origin requests from the allowed origin, answering preflight requests and
// allowing credentials.
//
// The origin is read on each request. When it is empty, requests are passed through untouched.
func CORS(origin OriginProvider, next http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		current  string
		withCORS http.Handler
	)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := origin()
		if allowed == "" {
			next.ServeHTTP(w, r)
			return
		}

		// Settings may be reloaded: rebuild the handler when the origin changes.
		mu.Lock()
		if withCORS == nil || current != allowed {
			current = allowed
			withCORS = newCORS(allowed).Handler(next)
		}
		h := withCORS
		mu.Unlock()

		h.ServeHTTP(w, r)
	})
}

func newCORS(origin string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}
