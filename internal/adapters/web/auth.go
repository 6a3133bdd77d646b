package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type authClaimsKey struct{}

// AuthClaims is the caller identity every ledger operation requires: an
// opaque actor ID and the tenant the actor belongs to. Tokens are issued
// by the surrounding platform's identity service; this adapter only
// verifies and extracts.
type AuthClaims struct {
	ActorID   string
	CompanyID int
}

// authFromContext returns the auth claims stored in ctx, or nil.
func authFromContext(ctx context.Context) *AuthClaims {
	v, _ := ctx.Value(authClaimsKey{}).(*AuthClaims)
	return v
}

// jwtClaims is the JWT payload struct used for signing and parsing.
type jwtClaims struct {
	ActorID   string `json:"actor_id"`
	CompanyID int    `json:"company_id"`
	jwt.RegisteredClaims
}

// RequireAuth validates the Authorization bearer token and injects
// AuthClaims into the request context. Returns 401 if the token is
// absent or invalid.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		claims := &jwtClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !parsed.Valid || claims.ActorID == "" || claims.CompanyID == 0 {
			writeError(w, r, "invalid or expired token", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), authClaimsKey{}, &AuthClaims{
			ActorID:   claims.ActorID,
			CompanyID: claims.CompanyID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SignToken mints a short-lived HS256 token for the given actor and
// tenant. Exists for tests and local tooling; production tokens come
// from the platform identity service with the same claim shape.
func SignToken(secret, actorID string, companyID int, ttl time.Duration) (string, error) {
	claims := &jwtClaims{
		ActorID:   actorID,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
