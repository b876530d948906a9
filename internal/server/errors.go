package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/tenantry/internal/auth/domain"
	"github.com/smallbiznis/tenantry/internal/authorization"
	"github.com/smallbiznis/tenantry/internal/observability/logger"
	orgdomain "github.com/smallbiznis/tenantry/internal/organization/domain"
	"github.com/smallbiznis/tenantry/internal/ratelimit"
	"go.uber.org/zap"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	return "validation error"
}

func (v *ValidationErrors) add(field, code, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Code: code, Message: message})
}

// err returns nil when nothing was added.
func (v *ValidationErrors) err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service unavailable")
)

const (
	typeValidation   = "validation_error"
	typeUnauthorized = "unauthorized"
	typeForbidden    = "forbidden"
	typeNotFound     = "not_found"
	typeConflict     = "conflict"
	typeRateLimited  = "rate_limited"
	typeUnavailable  = "service_unavailable"
	typeInternal     = "internal_error"
)

type errorRule struct {
	err    error
	status int
	kind   string
}

// errorRules is matched in order; the sentinel's text is the client message.
var errorRules = []errorRule{
	{ErrUnauthorized, http.StatusUnauthorized, typeUnauthorized},
	{authdomain.ErrInvalidCredentials, http.StatusUnauthorized, typeUnauthorized},
	{authdomain.ErrWrongAuthProvider, http.StatusUnauthorized, typeUnauthorized},
	{authdomain.ErrInvalidToken, http.StatusUnauthorized, typeUnauthorized},
	{authdomain.ErrTokenExpired, http.StatusUnauthorized, typeUnauthorized},

	{ErrForbidden, http.StatusForbidden, typeForbidden},
	{authorization.ErrForbidden, http.StatusForbidden, typeForbidden},
	{orgdomain.ErrForbidden, http.StatusForbidden, typeForbidden},
	{orgdomain.ErrAdminRequired, http.StatusForbidden, typeForbidden},
	{orgdomain.ErrSoleAdmin, http.StatusForbidden, typeForbidden},
	{orgdomain.ErrLastAdmin, http.StatusForbidden, typeForbidden},

	{ErrNotFound, http.StatusNotFound, typeNotFound},
	{authdomain.ErrUserNotFound, http.StatusNotFound, typeNotFound},
	{orgdomain.ErrOrganizationNotFound, http.StatusNotFound, typeNotFound},
	{orgdomain.ErrMemberNotFound, http.StatusNotFound, typeNotFound},
	{orgdomain.ErrUserNotFound, http.StatusNotFound, typeNotFound},

	{authdomain.ErrUserExists, http.StatusConflict, typeConflict},
	{orgdomain.ErrAlreadyMember, http.StatusConflict, typeConflict},

	{ratelimit.ErrTooManyRequests, http.StatusTooManyRequests, typeRateLimited},
	{ErrServiceUnavailable, http.StatusServiceUnavailable, typeUnavailable},
}

// validationSentinels are service-level input errors. Their text is the
// error code, e.g. "invalid_email".
var validationSentinels = []error{
	ErrInvalidRequest,
	authdomain.ErrInvalidEmail,
	authdomain.ErrInvalidPassword,
	authdomain.ErrInvalidName,
	orgdomain.ErrInvalidName,
	orgdomain.ErrInvalidEmail,
	orgdomain.ErrInvalidRole,
	orgdomain.ErrInvalidUser,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("route", c.FullPath()),
				zap.Error(lastErr.Err),
			)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	errs := &ValidationErrors{}
	errs.add(field, code, message)
	return errs
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload()
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    typeValidation,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, sentinel := range validationSentinels {
		if !errors.Is(err, sentinel) {
			continue
		}
		code := sentinel.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    typeValidation,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	for _, rule := range errorRules {
		if errors.Is(err, rule.err) {
			return rule.status, errorPayload{
				Type:    rule.kind,
				Message: rule.err.Error(),
			}
		}
	}

	return http.StatusInternalServerError, internalPayload()
}

func internalPayload() errorPayload {
	return errorPayload{
		Type:    typeInternal,
		Message: "internal server error",
	}
}

// classifyErrorForLog reports the error type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
