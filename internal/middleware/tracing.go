package middleware

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName    = "github.com/iliyamo/event-booking/internal/middleware"
	TraceIDHeader = "X-Trace-ID"
)

// Tracing starts a server span per request, continuing any trace context
// carried in the incoming headers.
func Tracing() echo.MiddlewareFunc {
	tracer := otel.Tracer(tracerName)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", req.Method, route),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPMethod(req.Method),
					semconv.HTTPRoute(route),
					semconv.UserAgentOriginal(req.UserAgent()),
					attribute.String("http.client_ip", c.RealIP()),
				),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				c.Response().Header().Set(TraceIDHeader, sc.TraceID().String())
			}
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			span.SetAttributes(semconv.HTTPStatusCode(status))
			if p, ok := PrincipalFrom(c); ok {
				span.SetAttributes(attribute.String("user.id", p.UserID.String()))
			}
			if status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			}
			return nil
		}
	}
}
