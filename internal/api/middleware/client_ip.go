package middleware

import (
	"net/http"

	"github.com/pratik-mahalle/secwatch/internal/detector"
)

// ClientIP resolves the caller's address once per request. Later handlers
// read it with detector.ClientIP.
func ClientIP(trust *detector.ProxyTrust) func(http.Handler) http.Handler {
	if trust == nil {
		trust = detector.TrustAllProxies
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, detector.WithClientIP(r, trust.ClientIP(r)))
		})
	}
}
