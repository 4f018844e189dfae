package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		renewalsTotal,
		renewalRunDuration,
		mandatesDeactivatedTotal,
	)
}

var (
	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewals_total",
			Help: "Mandate renewal charge attempts by result (approved/declined/error).",
		},
		[]string{"result"},
	)

	renewalRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renewal_run_duration_seconds",
			Help:    "Wall-clock duration of one renewal scheduler run.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)

	mandatesDeactivatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mandates_deactivated_total",
			Help: "Recurring mandates deactivated, labeled by reason (declined/error/cancelled).",
		},
		[]string{"reason"},
	)
)

func IncRenewal(result string) {
	renewalsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveRenewalRun(seconds float64) {
	renewalRunDuration.Observe(seconds)
}

func IncMandateDeactivated(reason string) {
	mandatesDeactivatedTotal.WithLabelValues(norm(reason)).Inc()
}
