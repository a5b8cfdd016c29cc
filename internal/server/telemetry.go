package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "whiteboard/server"

// requestTelemetry opens a span per request and logs one line when it
// completes.
func requestTelemetry(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}

			ctx, span := otel.Tracer(tracerName).Start(req.Context(), req.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
				),
			)
			defer span.End()
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status

			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			fields := log.Fields{
				"method":   req.Method,
				"route":    route,
				"status":   status,
				"total_ms": durationToMillis(time.Since(start)),
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			entry := logger.WithFields(fields)
			switch {
			case status >= http.StatusInternalServerError:
				entry.Error("request")
			case status >= http.StatusBadRequest:
				entry.Warn("request")
			default:
				entry.Debug("request")
			}
			return nil
		}
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
