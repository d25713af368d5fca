package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nikhilbhutani/texttospeech/internal/account"
	"github.com/nikhilbhutani/texttospeech/internal/cache"
	"github.com/nikhilbhutani/texttospeech/internal/models"
)

// TokenCache holds resolved token owners between requests. *cache.Cache
// implements it and a miss is reported as cache.ErrMiss.
type TokenCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type JWTMiddleware struct {
	secret   []byte
	store    Store
	cache    TokenCache
	cacheTTL time.Duration
}

// NewJWTMiddleware resolves tokens through tc when it is non-nil and
// cacheTTL is positive.
func NewJWTMiddleware(secret string, store Store, tc TokenCache, cacheTTL time.Duration) *JWTMiddleware {
	return &JWTMiddleware{
		secret:   []byte(secret),
		store:    store,
		cache:    tc,
		cacheTTL: cacheTTL,
	}
}

func (m *JWTMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractBearerToken(r)
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := m.resolve(r.Context(), claims.ID, claims.Subject)
		if err != nil {
			if !errors.Is(err, account.ErrTokenNotFound) && !errors.Is(err, account.ErrUserNotFound) {
				slog.Error("token lookup failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if user.ID.String() != claims.Subject {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(account.WithUser(r.Context(), user)))
	})
}

// resolve maps a token key to its owner, trying the cache before the store.
// A cached owner other than subject is stale and is dropped.
func (m *JWTMiddleware) resolve(ctx context.Context, key, subject string) (*models.User, error) {
	if key == "" {
		return nil, account.ErrTokenNotFound
	}

	cacheKey := "token:" + key
	if m.cache != nil && m.cacheTTL > 0 {
		var u models.User
		err := m.cache.Get(ctx, cacheKey, &u)
		switch {
		case err == nil && u.ID.String() == subject:
			return &u, nil
		case err == nil:
			if err := m.cache.Delete(ctx, cacheKey); err != nil {
				slog.Warn("token cache delete failed", "error", err)
			}
		case !errors.Is(err, cache.ErrMiss):
			slog.Warn("token cache read failed", "error", err)
		}
	}

	tok, err := m.store.GetToken(ctx, key)
	if err != nil {
		return nil, err
	}
	user, err := m.store.GetUserByID(ctx, tok.UserID)
	if err != nil {
		return nil, err
	}

	if m.cache != nil && m.cacheTTL > 0 {
		if err := m.cache.Set(ctx, cacheKey, user, m.cacheTTL); err != nil {
			slog.Warn("token cache write failed", "error", err)
		}
	}
	return user, nil
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
