package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = errors.New("api key not found")

// ScopeAll grants a key every modality.
const ScopeAll = "*"

type APIKey struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	KeyHash    string    `json:"key_hash"`
	Modalities []string  `json:"modalities"` // granted modality scopes, or ["*"]
	RateLimit  int64     `json:"rate_limit"` // max requests per minute
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// AllowsModality reports whether the key may dispatch the given modality.
func (a *APIKey) AllowsModality(modality string) bool {
	for _, m := range a.Modalities {
		if m == ScopeAll || m == modality {
			return true
		}
	}
	return false
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (a *APIKey) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (a *APIKey) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*APIKey, error)
	Create(ctx context.Context, apiKey *APIKey) error
	Revoke(ctx context.Context, keyID string) error
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	apiKeyKey    contextKey = "api_key"
	requestIDKey contextKey = "request_id"
)

func NewMiddleware(store Store, cache *redis.Client) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Generate RequestID
			requestID := uuid.New().String()
			ctx = context.WithValue(ctx, requestIDKey, requestID)
			w.Header().Set("X-Request-ID", requestID)

			// Extract Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized: missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			key := strings.TrimPrefix(authHeader, "Bearer ")

			// Hash key for Redis lookup
			h := sha256.New()
			h.Write([]byte(key))
			keyHash := hex.EncodeToString(h.Sum(nil))
			redisKey := fmt.Sprintf("auth:%s", keyHash)

			var apiKey APIKey
			err := cache.Get(ctx, redisKey).Scan(&apiKey)
			if err == nil {
				// Cache hit
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, apiKeyKey, &apiKey)))
				return
			} else if err != redis.Nil {
				log.Printf("auth: redis error: %v", err)
			}

			// Cache miss or error: lookup in store
			apiK, err := store.GetByKey(ctx, key)
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			// Cache the result for 5 minutes
			_ = cache.Set(ctx, redisKey, apiK, 5*time.Minute).Err()

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, apiKeyKey, apiK)))
		})
	}
}

// RequireModality rejects requests whose key lacks the modality scope. It
// must run inside NewMiddleware.
func RequireModality(modality string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetAPIKey(r.Context())
			if key == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !key.AllowsModality(modality) {
				http.Error(w, fmt.Sprintf("Forbidden: key not scoped for %s", modality), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Helpers to extract from context
func GetAPIKey(ctx context.Context) *APIKey {
	if k, ok := ctx.Value(apiKeyKey).(*APIKey); ok {
		return k
	}
	return nil
}

func GetTenantID(ctx context.Context) string {
	if k := GetAPIKey(ctx); k != nil {
		return k.TenantID
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Helpers for testing
func WithAPIKey(ctx context.Context, key *APIKey) context.Context {
	return context.WithValue(ctx, apiKeyKey, key)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
