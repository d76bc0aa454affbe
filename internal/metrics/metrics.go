package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conv paths.
const (
	PathFunctional = "functional"
	PathModule     = "module"
)

var (
	TrialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qconv_trials_total",
		Help: "Equivalence trials by outcome",
	}, []string{"outcome"})

	MismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qconv_mismatches_total",
		Help: "Trials where the functional and module paths diverged",
	})

	ConvDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qconv_conv_duration_seconds",
		Help:    "Quantized convolution latency by entry point",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
	}, []string{"path"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qconv_api_requests_total",
		Help: "API requests by route and status class",
	}, []string{"route", "status"})
)

// RecordTrial counts one trial outcome.
func RecordTrial(outcome string) {
	TrialsTotal.WithLabelValues(outcome).Inc()
}

// RecordMismatch counts one divergence.
func RecordMismatch() {
	MismatchesTotal.Inc()
}

// RecordConv observes how long one convolution call took.
func RecordConv(path string, d time.Duration) {
	ConvDuration.WithLabelValues(path).Observe(d.Seconds())
}

// RecordRequest counts one API request.
func RecordRequest(route string, status int) {
	RequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
