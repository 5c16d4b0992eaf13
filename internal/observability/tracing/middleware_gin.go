package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/pearlsonic/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/smallbiznis/pearlsonic/http"

// GinMiddleware opens one server span per request. After the handler chain
// runs it tags the span with the authenticated user, the job a music route
// addressed and the payment provider a webhook came from.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName)

	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)
		ctx, span := tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		span.SetName(method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		}
		attrs = append(attrs, routeAttributes(c, route)...)
		span.SetAttributes(SafeAttributes(attrs...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if last := c.Errors.Last(); last != nil {
				if safe := SafeError(last.Err); safe != nil {
					span.RecordError(safe)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		case status == http.StatusPaymentRequired:
			span.AddEvent("insufficient_credits")
		case status == http.StatusTooManyRequests:
			span.AddEvent("rate_limited")
		}
	}
}

func routeAttributes(c *gin.Context, route string) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if userID := obscontext.UserIDFromContext(c.Request.Context()); userID != "" {
		attrs = append(attrs, attribute.String("enduser.id", userID))
	}
	switch {
	case strings.HasPrefix(route, "/api/music/") && c.Param("id") != "":
		attrs = append(attrs, attribute.String("pearlsonic.job_id", c.Param("id")))
	case route == "/api/payment/paddle-webhook":
		attrs = append(attrs, attribute.String("pearlsonic.payment_provider", "paddle"))
	case strings.HasPrefix(route, "/api/payment/webhooks/"):
		attrs = append(attrs, attribute.String("pearlsonic.payment_provider", strings.ToLower(c.Param("provider"))))
	}
	return attrs
}
