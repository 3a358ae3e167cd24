// Package metrics provides Prometheus metrics for the codesync server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moyoez/codesync-go/types"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codesync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codesync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codesync_ws_connections_active",
			Help: "Number of open STOMP connections",
		},
	)

	inboundFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codesync_inbound_frames_total",
			Help: "Inbound SEND frames by destination feature",
		},
		[]string{"feature", "result"},
	)

	brokerDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codesync_broker_deliveries_total",
			Help: "Topic deliveries by topic kind and outcome",
		},
		[]string{"topic", "result"},
	)

	treeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codesync_tree_operations_total",
			Help: "Virtual file tree operations",
		},
		[]string{"op", "result"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codesync_sessions_active",
			Help: "Number of live sessions",
		},
	)

	terminalsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codesync_terminals_running",
			Help: "Number of running terminal processes",
		},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codesync_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func ConnectionOpened() { wsConnectionsActive.Inc() }
func ConnectionClosed() { wsConnectionsActive.Dec() }

// RecordInboundFrame records a dispatched SEND frame. result is one of
// "ok", "error", "dropped" or "unknown".
func RecordInboundFrame(feature, result string) {
	inboundFramesTotal.WithLabelValues(feature, result).Inc()
}

// RecordDelivery records one broker delivery attempt to one subscriber.
func RecordDelivery(topic types.TopicKind, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "dropped"
	}
	brokerDeliveriesTotal.WithLabelValues(string(topic), result).Inc()
}

// RecordTreeOp records a tree operation outcome, labelled by error kind.
func RecordTreeOp(op string, err error) {
	treeOperationsTotal.WithLabelValues(op, errorLabel(err)).Inc()
}

func errorLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrConflict):
		return "conflict"
	case errors.Is(err, types.ErrInvalidOperation):
		return "invalid"
	case errors.Is(err, types.ErrNotAFile), errors.Is(err, types.ErrNotAFolder):
		return "kind_mismatch"
	default:
		return "error"
	}
}

// SetSessionsActive sets the number of live sessions.
func SetSessionsActive(count int) {
	sessionsActive.Set(float64(count))
}

func TerminalStarted() { terminalsRunning.Inc() }
func TerminalStopped() { terminalsRunning.Dec() }

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}
