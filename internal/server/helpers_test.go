package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
	"github.com/smallbiznis/tenantry/internal/config"
	"github.com/smallbiznis/tenantry/internal/observability"
	obsmetrics "github.com/smallbiznis/tenantry/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/ratelimit"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, authsvc authdomain.Service, orgsvc orgdomain.Service, limiter *ratelimit.LoginLimiter) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())
	require.NoError(t, err)

	return NewServer(ServerParams{
		Gin:             NewEngine(observability.Config{Environment: "test"}, httpMetrics),
		Cfg:             config.Config{Environment: "test"},
		Authsvc:         authsvc,
		OrganizationSvc: orgsvc,
		LoginLimiter:    limiter,
	})
}

func doRequest(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func doRequestWithHeader(t *testing.T, s *Server, method, path, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", authorization)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}
