package server

import (
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang/mock/gomock"
	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
	authmocks "github.com/smallbiznis/tenantry/internal/auth/mocks"
	"github.com/smallbiznis/tenantry/internal/config"
	orgmocks "github.com/smallbiznis/tenantry/internal/organization/mocks"
	"github.com/smallbiznis/tenantry/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

func newLimitedServer(t *testing.T, burst int) (*Server, *authmocks.MockService, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)

	lc := fxtest.NewLifecycle(t)
	limiter, err := ratelimit.NewLoginLimiter(lc, config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:      true,
			RedisAddr:    srv.Addr(),
			LoginRate:    0.001,
			LoginBurst:   burst,
			LoginLockTTL: 5 * time.Second,
		},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	lc.RequireStart()
	t.Cleanup(func() { lc.RequireStop() })

	ctrl := gomock.NewController(t)
	auth := authmocks.NewMockService(ctrl)
	return newTestServer(t, auth, orgmocks.NewMockService(ctrl), limiter), auth, srv
}

var loginBody = map[string]string{"email": "ada@example.com", "password": "password123"}

func TestLoginRateLimitPerClientIP(t *testing.T) {
	s, auth, _ := newLimitedServer(t, 1)
	auth.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, authdomain.ErrInvalidCredentials).Times(1)

	rec := doRequest(t, s, http.MethodPost, "/auth/login", "", loginBody)
	requireStatus(t, rec, http.StatusUnauthorized)

	rec = doRequest(t, s, http.MethodPost, "/auth/login", "", loginBody)
	requireStatus(t, rec, http.StatusTooManyRequests)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
	assert.Equal(t, rateLimitReasonClientIP, rec.Header().Get("X-Rate-Limited-Reason"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
}

func TestLoginRateLimitSingleAttemptPerAccount(t *testing.T) {
	s, _, srv := newLimitedServer(t, 5)
	require.NoError(t, srv.Set("auth:login:lock:ada@example.com", "held-elsewhere"))

	rec := doRequest(t, s, http.MethodPost, "/auth/login", "", loginBody)
	requireStatus(t, rec, http.StatusTooManyRequests)
	assert.Equal(t, rateLimitReasonAccountConcurrency, rec.Header().Get("X-Rate-Limited-Reason"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestLoginRateLimitReleasesAccountLock(t *testing.T) {
	s, auth, srv := newLimitedServer(t, 5)
	auth.EXPECT().Login(gomock.Any(), authdomain.LoginRequest{Email: "ada@example.com", Password: "password123"}).
		Return(&authdomain.Session{AccessToken: "jwt", TokenType: "Bearer"}, nil).
		Times(2)

	requireStatus(t, doRequest(t, s, http.MethodPost, "/auth/login", "", loginBody), http.StatusOK)
	assert.False(t, srv.Exists("auth:login:lock:ada@example.com"))
	requireStatus(t, doRequest(t, s, http.MethodPost, "/auth/login", "", loginBody), http.StatusOK)
}

func TestLoginRateLimitRedisDownIsUnavailable(t *testing.T) {
	s, _, srv := newLimitedServer(t, 5)
	srv.Close()

	rec := doRequest(t, s, http.MethodPost, "/auth/login", "", loginBody)
	requireStatus(t, rec, http.StatusServiceUnavailable)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, "3", retryAfterSeconds(2100*time.Millisecond))
}

func TestLoginRateLimitRejectsOversizedBody(t *testing.T) {
	s, _, srv := newLimitedServer(t, 5)

	body := `{"email":"ada@example.com","password":"` + strings.Repeat("a", maxLoginBodyBytes) + `"}`
	rec := doRequest(t, s, http.MethodPost, "/auth/login", "", body)
	requireStatus(t, rec, http.StatusBadRequest)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)
	assert.False(t, srv.Exists("auth:login:lock:ada@example.com"))
}
