package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tenantry/internal/observability/logger"
	"github.com/smallbiznis/tenantry/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	rateLimitReasonClientIP           = "client-ip"
	rateLimitReasonAccountConcurrency = "account-concurrency"
)

// maxLoginBodyBytes caps the body read before the login handler runs.
const maxLoginBodyBytes = 16 << 10

type loginRateLimitKey struct {
	Email string `json:"email"`
}

// LoginRateLimit throttles login attempts per client IP and serialises
// attempts against a single account.
func (s *Server) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.loginLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.loginLimiter.AllowIP(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("login rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			s.denyLoginRateLimit(c, endpoint, rateLimitReasonClientIP, result.RetryAfter)
			return
		}

		email, err := readLoginEmail(c)
		if err != nil {
			logger.FromContext(ctx).Warn("login rate limit read body failed", zap.Error(err))
			AbortWithError(c, invalidRequestError())
			return
		}

		if email != "" {
			token, locked, err := s.loginLimiter.TryLockAccount(ctx, email)
			if err != nil {
				logger.FromContext(ctx).Warn("login account lock failed", zap.Error(err))
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			if !locked {
				s.denyLoginRateLimit(c, endpoint, rateLimitReasonAccountConcurrency, time.Second)
				return
			}
			defer func() {
				if err := s.loginLimiter.ReleaseAccount(ctx, email, token); err != nil {
					logger.FromContext(ctx).Warn("login account unlock failed", zap.Error(err))
				}
			}()
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, endpoint)
		c.Next()
	}
}

func (s *Server) denyLoginRateLimit(c *gin.Context, endpoint, reason string, retryAfter time.Duration) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("login rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, reason)

	c.Header("Retry-After", retryAfterSeconds(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ratelimit.ErrTooManyRequests)
}

// retryAfterSeconds rounds up and never advertises less than one second.
func retryAfterSeconds(d time.Duration) string {
	seconds := int64(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}

// readLoginEmail peeks at the body and restores it for the handler.
// Malformed JSON is left for the handler to reject.
func readLoginEmail(c *gin.Context) (string, error) {
	if c.Request.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxLoginBodyBytes))
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload loginRateLimitKey
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}
	return strings.TrimSpace(payload.Email), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
