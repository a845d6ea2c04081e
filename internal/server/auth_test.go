package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minijira/internal/domain"
)

func testUser() domain.User {
	dept := "dep_eng"
	return domain.User{ID: "u1", Email: "user@demo.com", DepartmentID: &dept, Roles: []string{"USER"}}
}

func TestSignAndAuthenticateJWT(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "secret", Issuer: "minijira", Audience: "minijira", TokenTTL: time.Minute}
	now := time.Now()
	token, expires, err := signToken(cfg, testUser(), now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Minute), expires, time.Second)

	p, err := authenticateJWT(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "u1", Email: "user@demo.com", Source: "jwt"}, p)

	_, err = authenticateJWT(token, AuthConfig{JWTSecret: "other", Issuer: "minijira", Audience: "minijira"})
	assert.Error(t, err)

	_, err = authenticateJWT(token, AuthConfig{JWTSecret: "secret", Issuer: "minijira", Audience: "elsewhere"})
	assert.Error(t, err)
}

func TestAuthenticateJWTRejectsExpiredAndUnsigned(t *testing.T) {
	cfg := AuthConfig{JWTSecret: "secret", TokenTTL: time.Minute}
	token, _, err := signToken(cfg, testUser(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = authenticateJWT(token, cfg)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = authenticateJWT(unsigned, cfg)
	assert.Error(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = authenticateJWT(noExp, cfg)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
	tok, ok = bearerToken("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
	_, ok = bearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = bearerToken("Bearer")
	assert.False(t, ok)
}

func TestIsPublicPath(t *testing.T) {
	assert.True(t, isPublicPath("/api", "/api/health"))
	assert.True(t, isPublicPath("/api", "/api/auth/login"))
	assert.True(t, isPublicPath("/api", "/api/departments"))
	assert.False(t, isPublicPath("/api", "/api/admin/departments"))
	assert.False(t, isPublicPath("/api", "/api/me"))
}

func TestRateLimiter(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0, 5))

	rl := NewRateLimiter(0.001, 2)
	require.NotNil(t, rl)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := newRateLimiter(0.001, 1, 2)
	require.NotNil(t, rl)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("client-%d", i))
	}
	assert.Equal(t, 2, rl.Tracked())
	assert.True(t, rl.Allow("a"), "an evicted key starts over")

	rl = newRateLimiter(0.001, 1, 0)
	require.NotNil(t, rl)
	assert.True(t, rl.Allow("a"))
}

func TestLoginRateLimitIgnoresOtherRoutes(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := loginRateLimit("/api/auth/login", NewRateLimiter(0.001, 1))(next)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
