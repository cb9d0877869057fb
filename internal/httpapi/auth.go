package httpapi

import (
	"net/http"
	"strings"

	"hkms/internal/access"
)

// AuthMiddleware resolves the caller once per request and stores the
// identity on the context. Role checks happen per route.
func AuthMiddleware(gate *access.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		id, err := gate.Resolve(r.Context(), sessionIDFromRequest(r))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, requestIDFromRequest(r), status, code, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(access.WithIdentity(r.Context(), id)))
	})
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

// isPublicEndpoint lists paths served without an identity. Realtime
// transports authenticate themselves when configured to.
func isPublicEndpoint(r *http.Request) bool {
	switch {
	case r.URL.Path == "/healthz", r.URL.Path == "/metrics":
		return true
	case r.URL.Path == "/api/auth/login":
		return r.Method == http.MethodPost
	case r.URL.Path == "/ws", strings.HasPrefix(r.URL.Path, "/realtime"):
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
