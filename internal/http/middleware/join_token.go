package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const joinClaimsKey contextKey = "joinClaims"

// JoinToken enforces the short-lived HMAC token minted by /api/token on the
// realtime join route. The token arrives as a Bearer header or, for browser
// WebSocket clients that cannot set headers, a ?token= query parameter.
// An empty secret disables enforcement (local development).
func JoinToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tokenString == "" || tokenString == r.Header.Get("Authorization") {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				http.Error(w, "missing join token", http.StatusUnauthorized)
				return
			}
			claims := jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid join token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), joinClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JoinClaimsFromContext returns the verified join-token claims if present.
func JoinClaimsFromContext(ctx context.Context) (jwt.RegisteredClaims, bool) {
	claims, ok := ctx.Value(joinClaimsKey).(jwt.RegisteredClaims)
	return claims, ok
}
