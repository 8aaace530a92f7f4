package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds the server-side request instruments. Attributes stay
// low cardinality: the matched route template and the status code, never
// raw paths or query strings.
type HTTPMetrics struct {
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "escrow"
	}
	meter := provider.Meter(service + "/http")

	duration, err := meter.Float64Histogram("http.server.duration_ms")
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("http.server.in_flight")
	if err != nil {
		return nil, err
	}
	return &HTTPMetrics{duration: duration, inFlight: inFlight}, nil
}

// GinMiddleware measures request duration and tracks in-flight requests.
// A nil receiver disables measurement so the server wires up the same way
// whether or not the meter provider is configured.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		route := routeAttr(c.FullPath())

		m.inFlight.Add(ctx, 1, metric.WithAttributes(route))
		start := time.Now()
		c.Next()
		m.inFlight.Add(ctx, -1, metric.WithAttributes(route))

		m.duration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
			route,
			attribute.String("status_code", strconv.Itoa(c.Writer.Status())),
		))
	}
}

// routeAttr uses the route template, not the request path, so that
// /withdrawals/123 and /withdrawals/456 land in one series.
func routeAttr(template string) attribute.KeyValue {
	template = strings.TrimSpace(template)
	if template == "" {
		template = "unmatched"
	}
	return attribute.String("endpoint", template)
}
