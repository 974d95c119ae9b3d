package httphandler

import "net/http"

// DefaultAllowedOrigin is the browser origin of the chat client.
const DefaultAllowedOrigin = "https://k03e2io1y3fx9wvj0vr8.container-api.io"

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "POST, GET, PUT, DELETE, OPTIONS"
)

// corsMiddleware stamps the fixed cross-origin headers on every response and
// answers preflight requests itself, before routing or any handler runs.
func corsMiddleware(allowedOrigin string, next http.Handler) http.Handler {
	if allowedOrigin == "" {
		allowedOrigin = DefaultAllowedOrigin
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowedOrigin)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
