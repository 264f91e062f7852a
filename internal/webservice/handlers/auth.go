package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Authorized reports whether r carries the bearer token secret.
// Requests are never authorized when secret is empty.
func Authorized(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
	if !ok || token == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
