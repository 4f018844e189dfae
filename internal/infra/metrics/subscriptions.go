package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsExpiredTotal,
		accessChecksTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Users flipped to expired, by the cleanup worker or lazily by the access gate.",
		},
	)

	accessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_access_checks_total",
			Help: "Access gate decisions (allowed/none/expired/not_active).",
		},
		[]string{"decision"},
	)
)

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func IncAccessCheck(decision string) {
	accessChecksTotal.WithLabelValues(norm(decision)).Inc()
}
