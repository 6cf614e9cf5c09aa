package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func serve(t *testing.T, authHeader string) (*httptest.ResponseRecorder, Identity) {
	t.Helper()
	var got Identity
	h := JWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		got = id
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestJWT_AttachesIdentity(t *testing.T) {
	tok := sign(t, secret, jwt.MapClaims{
		"user_id":   "u1",
		"tenant_id": "acme",
		"name":      "Kim",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	rec, id := serve(t, "Bearer "+tok)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, Identity{TenantID: "acme", UserID: "u1", Name: "Kim"}, id)
}

func TestJWT_TenantDefaultsToUser(t *testing.T) {
	rec, id := serve(t, "Bearer "+sign(t, secret, jwt.MapClaims{"user_id": "u1"}))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", id.TenantID)
}

func TestJWT_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic abc",
		"wrong secret":   "Bearer " + sign(t, []byte("other"), jwt.MapClaims{"user_id": "u1"}),
		"expired":        "Bearer " + sign(t, secret, jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no user":        "Bearer " + sign(t, secret, jwt.MapClaims{"tenant_id": "acme"}),
		"garbage":        "Bearer not.a.token",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, _ := serve(t, header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestIdentityFrom_Missing(t *testing.T) {
	_, ok := IdentityFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
