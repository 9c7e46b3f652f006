package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"subscription-ledger/internal/infra/logging"
	"subscription-ledger/internal/infra/metrics"
	red "subscription-ledger/internal/infra/redis"
)

const issuer = "subscription-ledger"

var errMissingToken = errors.New("missing token")

// Claims identify the ledger user in Subject.
type Claims struct {
	jwt.RegisteredClaims
}

// MintToken signs a bearer token for userID. Used by cmd/seed and tests.
func MintToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// UserID extracts the subject of a valid bearer token.
func (a *Authenticator) UserID(r *http.Request) (string, error) {
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") {
		return "", errMissingToken
	}
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(strings.TrimSpace(hdr[7:]), claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !tkn.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid token and puts the user id in context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.UserID(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required.")
			return
		}
		if rw, ok := w.(*respWriter); ok {
			rw.userID = userID
		}
		next.ServeHTTP(w, r.WithContext(logging.WithUserID(r.Context(), userID)))
	})
}

// Limiter is a per-key fixed-window counter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ Limiter = (*red.RateLimiter)(nil)

// RateLimit caps requests per authenticated user on one route. A limiter
// failure lets the request through.
func RateLimit(l Limiter, route string, limit int, window time.Duration, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := logging.UserIDFrom(r.Context())
			ok, err := l.Allow(r.Context(), red.UserRouteKey(userID, route), limit, window)
			if err != nil {
				logging.With(r.Context(), logger).Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.IncRateLimited(route)
				writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
