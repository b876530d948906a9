package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tenantry/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func fieldMap(entry observer.LoggedEntry) map[string]interface{} {
	return entry.ContextMap()
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithUserID(ctx, "42")
	ctx = obscontext.WithOrgID(ctx, "7")

	WithContext(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := fieldMap(logs.All()[0])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["user_id"])
	assert.Equal(t, "7", fields["org_id"])
	assert.Equal(t, "", fields["trace_id"])
}

func TestGinMiddlewareLogsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observe(t, zapcore.DebugLevel)

	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) { return "unauthorized", "invalid_credentials" },
	}))
	router.POST("/auth/login", func(c *gin.Context) {
		_ = c.Error(errors.New("invalid credentials"))
		c.Status(http.StatusUnauthorized)
	})
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)

	login := entries[0]
	assert.Equal(t, zapcore.WarnLevel, login.Level)
	fields := fieldMap(login)
	assert.Equal(t, "fixed-id", fields["request_id"])
	assert.Equal(t, "/auth/login", fields["route"])
	assert.Equal(t, "invalid_credentials", fields["error_code"])

	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}

func TestGormLoggerTrace(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	gl := NewGormLogger(DefaultGormLoggerConfig())
	sql := func() (string, int64) { return "SELECT * FROM users WHERE email = ?", 0 }

	gl.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	gl.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "SELECT", fieldMap(entry)["operation"])

	gl.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)
}

func TestGormLoggerSilent(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	gl := NewGormLogger(DefaultGormLoggerConfig()).LogMode(gormlogger.Silent)

	gl.Trace(context.Background(), time.Now(), func() (string, int64) { return "DELETE FROM users", 1 }, errors.New("boom"))
	gl.Error(context.Background(), "ignored")
	assert.Equal(t, 0, logs.Len())
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("  select * from organizations"))
	assert.Equal(t, "INSERT", operationFromSQL("INSERT INTO users (id) VALUES (?)"))
	assert.Equal(t, "OTHER", operationFromSQL("BEGIN"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
