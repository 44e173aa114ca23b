package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// APIKeyHeader is the header carrying the admin key
const APIKeyHeader = "X-API-Key"

// AdminKey rejects requests that do not present one of keys, either in
// the X-API-Key header or as a bearer token. An empty key list disables the check.
func AdminKey(keys []string, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					key = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if key == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			if !validKey(keys, key) {
				logger.Warn("invalid admin key",
					zap.String("path", r.URL.Path),
					zap.String("ip", ClientIP(r)))
				writeJSONError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// validKey compares in constant time against every configured key
func validKey(keys []string, provided string) bool {
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(provided)) == 1 {
			ok = true
		}
	}
	return ok
}
