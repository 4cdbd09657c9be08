package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "taskdesk",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Duration of REST calls issued by the client, by route and response status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

type requestMetrics struct {
	logger *log.Logger
	method string
	route  string
	start  time.Time
}

func newRequestMetrics(logger *log.Logger, method, route string) *requestMetrics {
	return &requestMetrics{
		logger: logger,
		method: method,
		route:  route,
		start:  time.Now(),
	}
}

// finish records the outcome of a request. status is 0 when no response was
// received.
func (m *requestMetrics) finish(span trace.Span, status int, err error) {
	elapsed := time.Since(m.start)

	statusLabel := "none"
	if status != 0 {
		statusLabel = strconv.Itoa(status)
	}
	requestDuration.WithLabelValues(m.method, m.route, statusLabel).Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.String("http.method", m.method),
		attribute.String("http.route", m.route),
	)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	fields := log.Fields{
		"method":   m.method,
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(elapsed),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Debug("api.request")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
