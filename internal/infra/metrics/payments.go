package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		callbacksTotal,
		callbackReplaysTotal,
		transactionsTotal,
		revenueTotal,
	)
}

var (
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msu_callbacks_total",
			Help: "Gateway callbacks by outcome (approved/failed/unresolved/error).",
		},
		[]string{"outcome"},
	)

	callbackReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "msu_callback_replays_total",
			Help: "Redelivered callbacks short-circuited by the processed-callback ledger.",
		},
	)

	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msu_transactions_total",
			Help: "Persisted gateway transactions by status and kind (cit/mit).",
		},
		[]string{"status", "kind"},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msu_revenue_total",
			Help: "The total monetary value of approved transactions, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncCallback(outcome string) {
	callbacksTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncCallbackReplay() {
	callbackReplaysTotal.Inc()
}

func IncTransaction(status, kind string) {
	transactionsTotal.WithLabelValues(norm(status), norm(kind)).Inc()
}

func AddRevenue(currency string, amount float64) {
	revenueTotal.WithLabelValues(norm(currency)).Add(amount)
}
