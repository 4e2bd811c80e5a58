package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timesheet_remote_ops_total",
		Help: "Total number of remote spreadsheet operations by outcome.",
	}, []string{"op", "outcome"})

	remoteOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timesheet_remote_op_duration_seconds",
		Help:    "Histogram of remote spreadsheet operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	authRecoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timesheet_auth_recoveries_total",
		Help: "Total number of re-authentication cycles after an expired token.",
	}, []string{"outcome"})

	localFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timesheet_local_fallbacks_total",
		Help: "Total number of times a failed sync fell back to the local snapshot.",
	}, []string{"op"})
)

// ObserveRemoteOp records one remote operation and how long it took.
func ObserveRemoteOp(op, outcome string, started time.Time) {
	remoteOpsTotal.WithLabelValues(op, outcome).Inc()
	remoteOpDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func ObserveAuthRecovery(outcome string) {
	authRecoveriesTotal.WithLabelValues(outcome).Inc()
}

func ObserveLocalFallback(op string) {
	localFallbacksTotal.WithLabelValues(op).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
