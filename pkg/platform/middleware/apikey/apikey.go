// Package apikey guards issuer-side endpoints behind a shared X-API-Key header.
package apikey

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"credtrust/pkg/platform/httputil"
	"credtrust/pkg/requestcontext"
)

// Header is the request header carrying the API key.
const Header = "X-API-Key"

// Require rejects requests whose X-API-Key does not match one of keys.
// Comparison is constant-time against every configured key.
func Require(keys []string, logger *slog.Logger) func(http.Handler) http.Handler {
	digests := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		sum := sha256.Sum256([]byte(k))
		digests = append(digests, sum[:])
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			presented := r.Header.Get(Header)
			if presented == "" {
				logger.WarnContext(ctx, "api key missing", "request_id", requestcontext.RequestID(ctx))
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            "unauthorized",
					ErrorDescription: "API key required",
				})
				return
			}

			sum := sha256.Sum256([]byte(presented))
			matched := 0
			for _, d := range digests {
				matched |= subtle.ConstantTimeCompare(sum[:], d)
			}
			if matched != 1 {
				logger.WarnContext(ctx, "api key mismatch", "request_id", requestcontext.RequestID(ctx))
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:            "unauthorized",
					ErrorDescription: "invalid API key",
				})
				return
			}

			ctx = requestcontext.WithAPIKeyID(ctx, hex.EncodeToString(sum[:4]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
