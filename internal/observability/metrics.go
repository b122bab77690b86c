package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	bootstrapTotal    *prometheus.CounterVec
	bootstrapDuration prometheus.Histogram
	restartTotal      *prometheus.CounterVec
	restartDuration   prometheus.Histogram
	activeSessions    prometheus.Gauge
	handlesEnded      prometheus.Counter
	greetingsSent     prometheus.Counter

	backendCallTotal    *prometheus.CounterVec
	backendCallDuration *prometheus.HistogramVec

	recordLoadDuration prometheus.Histogram
	recordSaveDuration prometheus.Histogram
	recordsPruned      prometheus.Counter

	gatewayClients prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			bootstrapTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webchat_bootstrap_total",
					Help: "Total bootstrap operations by status.",
				},
				[]string{"status"},
			),
			bootstrapDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "webchat_bootstrap_duration_seconds",
					Help:    "Bootstrap duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			restartTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webchat_restart_total",
					Help: "Total restart operations by id policy and status.",
				},
				[]string{"id_policy", "status"},
			),
			restartDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "webchat_restart_duration_seconds",
					Help:    "Restart duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "webchat_active_sessions",
					Help: "Current number of active DirectLine sessions.",
				},
			),
			handlesEnded: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "webchat_handles_ended_total",
					Help: "Total DirectLine handles explicitly ended.",
				},
			),
			greetingsSent: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "webchat_greetings_sent_total",
					Help: "Total initial conversationUpdate activities sent.",
				},
			),
			backendCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "webchat_backend_calls_total",
					Help: "Total conversation backend calls by operation and status.",
				},
				[]string{"op", "status"},
			),
			backendCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "webchat_backend_call_duration_seconds",
					Help:    "Conversation backend call duration in seconds by operation.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"op"},
			),
			recordLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "webchat_record_load_duration_seconds",
					Help:    "Chat record load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			recordSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "webchat_record_save_duration_seconds",
					Help:    "Chat record save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			recordsPruned: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "webchat_records_pruned_total",
					Help: "Total chat records removed by retention cleanup.",
				},
			),
			gatewayClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "webchat_gateway_clients",
					Help: "Current number of connected gateway clients.",
				},
			),
		}

		prometheus.MustRegister(
			m.bootstrapTotal,
			m.bootstrapDuration,
			m.restartTotal,
			m.restartDuration,
			m.activeSessions,
			m.handlesEnded,
			m.greetingsSent,
			m.backendCallTotal,
			m.backendCallDuration,
			m.recordLoadDuration,
			m.recordSaveDuration,
			m.recordsPruned,
			m.gatewayClients,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordBootstrap(duration time.Duration, success bool) {
	m := getMetrics()
	m.bootstrapTotal.WithLabelValues(statusLabel(success)).Inc()
	m.bootstrapDuration.Observe(duration.Seconds())
}

func RecordRestart(requireNewID bool, duration time.Duration, success bool) {
	m := getMetrics()
	policy := "same"
	if requireNewID {
		policy = "new"
	}
	m.restartTotal.WithLabelValues(policy, statusLabel(success)).Inc()
	m.restartDuration.Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordHandleEnded() {
	getMetrics().handlesEnded.Inc()
}

func RecordGreetingSent() {
	getMetrics().greetingsSent.Inc()
}

func RecordBackendCall(op string, duration time.Duration, success bool) {
	m := getMetrics()
	m.backendCallTotal.WithLabelValues(op, statusLabel(success)).Inc()
	m.backendCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordRecordLoad(duration time.Duration) {
	getMetrics().recordLoadDuration.Observe(duration.Seconds())
}

func RecordRecordSave(duration time.Duration) {
	getMetrics().recordSaveDuration.Observe(duration.Seconds())
}

func RecordRecordsPruned(count int) {
	getMetrics().recordsPruned.Add(float64(count))
}

func SetGatewayClients(count int) {
	getMetrics().gatewayClients.Set(float64(count))
}
