package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agentcache/agentcache/internal/limits"
)

type contextKey string

const (
	KeyHashKey contextKey = "api_key_hash"
	TierKey    contextKey = "api_key_tier"
)

// RequireAPIKey authenticates the Bearer API key, derives its tier from the
// key prefix, and stashes the key's hash in the context. Raw keys are never
// stored or logged.
func RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		tier, ok := tierFor(raw)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_api_key"})
			return
		}

		sum := sha256.Sum256([]byte(raw))
		ctx := context.WithValue(r.Context(), KeyHashKey, hex.EncodeToString(sum[:16]))
		ctx = context.WithValue(ctx, TierKey, tier)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tierFor(key string) (limits.Tier, bool) {
	switch {
	case strings.HasPrefix(key, "sk_live_") && len(key) > len("sk_live_"):
		return limits.TierLive, true
	case strings.HasPrefix(key, "sk_demo_") && len(key) > len("sk_demo_"):
		return limits.TierDemo, true
	default:
		return "", false
	}
}

// KeyHash extracts the hashed API key from the request context.
func KeyHash(ctx context.Context) string {
	v, _ := ctx.Value(KeyHashKey).(string)
	return v
}

// Tier extracts the API key tier from the request context.
func Tier(ctx context.Context) limits.Tier {
	v, ok := ctx.Value(TierKey).(limits.Tier)
	if !ok {
		return limits.TierDemo
	}
	return v
}
