package platform

import "net/http"

// APIKeyMiddleware enforces the X-API-Key header when API_KEY is configured.
// With no key configured the middleware passes requests through unchanged.
func APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetEnv("API_KEY", "")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != key {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
