package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/tenantry/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "tenantry/http"

type middlewareOptions struct {
	provider trace.TracerProvider
}

// MiddlewareOption configures GinMiddleware.
type MiddlewareOption func(*middlewareOptions)

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) MiddlewareOption {
	return func(o *middlewareOptions) {
		if tp != nil {
			o.provider = tp
		}
	}
}

// GinMiddleware opens one server span per request. The span is named after
// the route template and carries the caller's user and organization once
// authentication has run.
func GinMiddleware(opts ...MiddlewareOption) gin.HandlerFunc {
	o := middlewareOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		provider := o.provider
		if provider == nil {
			provider = otel.GetTracerProvider()
		}
		tracer := provider.Tracer(instrumentationName)

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, spanName(c.Request.Method, ""), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withRequestBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		span.SetName(spanName(c.Request.Method, route))
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		annotateCaller(c.Request.Context(), span)
		annotateOutcome(c, span, status)
	}
}

func spanName(method, route string) string {
	name := "HTTP " + strings.ToUpper(method)
	if route != "" {
		name += " " + route
	}
	return name
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

// withRequestBaggage propagates the request id to downstream calls.
func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))

	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

func annotateCaller(ctx context.Context, span trace.Span) {
	if userID := obscontext.UserIDFromContext(ctx); userID != "" {
		span.SetAttributes(attribute.String("enduser.id", userID))
	}
	if orgID := obscontext.OrgIDFromContext(ctx); orgID != "" {
		span.SetAttributes(attribute.String("tenant.org_id", orgID))
	}
}

// annotateOutcome marks denials as events and only server faults as errors.
func annotateOutcome(c *gin.Context, span trace.Span, status int) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		span.AddEvent("access_denied", trace.WithAttributes(attribute.Int("http.status_code", status)))
	case status == http.StatusTooManyRequests:
		span.AddEvent("rate_limited", trace.WithAttributes(
			attribute.String("reason", c.Writer.Header().Get("X-Rate-Limited-Reason")),
		))
	case status >= http.StatusInternalServerError:
		if last := c.Errors.Last(); last != nil {
			if safeErr := SafeError(last.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
