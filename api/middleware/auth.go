// Package middleware holds the HTTP middleware chain: request ids, access
// logging, metrics, rate limiting and api-key authentication.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/types"
)

const authPrefix = "TOKEN "

type contextKey int

const userKey contextKey = iota

// UserFrom returns the authenticated user stored by Auth.
func UserFrom(ctx context.Context) (*types.User, bool) {
	u, ok := ctx.Value(userKey).(*types.User)
	return u, ok
}

// KeyLookup resolves an api key to a user.
type KeyLookup func(ctx context.Context, key string) (*types.User, error)

// Auth authenticates requests via the Authorization header, caching key
// lookups for a short TTL to keep the hot path off the ledger.
type Auth struct {
	lookup KeyLookup
	cache  *gocache.Cache
	log    *zap.Logger
}

// NewAuth creates an Auth middleware with the given lookup cache TTL.
func NewAuth(lookup KeyLookup, ttl time.Duration, log *zap.Logger) *Auth {
	return &Auth{
		lookup: lookup,
		cache:  gocache.New(ttl, 2*ttl),
		log:    log.Named("auth"),
	}
}

// Evict drops a cached api key. Call on user deletion so a deleted key stops
// authenticating immediately instead of at TTL expiry.
func (a *Auth) Evict(apiKey string) {
	a.cache.Delete(apiKey)
}

// Require authenticates the request and stores the user in the context.
func (a *Auth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.authenticate(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

// RequireAdmin authenticates and additionally checks the ADMIN role.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		if u.Role != types.RoleAdmin {
			writeAuthError(w, types.ErrAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (a *Auth) authenticate(r *http.Request) (*types.User, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, authPrefix) {
		return nil, types.ErrInvalidAuthFormat
	}
	key := strings.TrimPrefix(header, authPrefix)
	if key == "" {
		return nil, types.ErrInvalidAuthFormat
	}

	if cached, ok := a.cache.Get(key); ok {
		return cached.(*types.User), nil
	}

	u, err := a.lookup(r.Context(), key)
	if err != nil {
		if errors.Is(err, types.ErrUserNotFound) {
			return nil, types.ErrInvalidAPIKey
		}
		return nil, err
	}
	a.cache.SetDefault(key, u)
	return u, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	detail := "Invalid API key"
	switch {
	case errors.Is(err, types.ErrInvalidAuthFormat):
		detail = "Invalid authorization format"
	case errors.Is(err, types.ErrAdminRequired):
		status = http.StatusForbidden
		detail = "Access denied: Admin rights required"
	case errors.Is(err, types.ErrInvalidAPIKey):
	default:
		status = http.StatusInternalServerError
		detail = "Internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
