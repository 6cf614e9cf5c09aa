package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const (
	tenantIDKey ctxKey = iota
	userIDKey
	nameKey
)

// Identity is the caller as asserted by the token.
type Identity struct {
	TenantID string
	UserID   string
	Name     string
}

// JWT validates the Bearer token with an HMAC secret and attaches the caller's
// identity to the request context. tenant_id falls back to user_id for tokens
// issued to single-user tenants.
func JWT(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing or invalid token", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(t *jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}))
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			userID, _ := claims["user_id"].(string)
			if userID == "" {
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}
			tenantID, _ := claims["tenant_id"].(string)
			if tenantID == "" {
				tenantID = userID
			}
			name, _ := claims["name"].(string)

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Identity{TenantID: tenantID, UserID: userID, Name: name})))
		})
	}
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, id.TenantID)
	ctx = context.WithValue(ctx, userIDKey, id.UserID)
	return context.WithValue(ctx, nameKey, id.Name)
}

// IdentityFrom returns the identity set by JWT. ok is false when the request
// did not pass through it.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	tenantID, _ := ctx.Value(tenantIDKey).(string)
	userID, _ := ctx.Value(userIDKey).(string)
	name, _ := ctx.Value(nameKey).(string)
	if tenantID == "" || userID == "" {
		return Identity{}, false
	}
	return Identity{TenantID: tenantID, UserID: userID, Name: name}, true
}
