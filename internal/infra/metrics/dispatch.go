package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		requestsDispatchedTotal,
		sellerNotificationsTotal,
		relaysTotal,
		requestsExpiredTotal,
	)
}

var (
	requestsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "part_requests_dispatched_total",
			Help: "Part requests fanned out to sellers, by source and whether any seller matched.",
		},
		[]string{"source", "matched"},
	)

	sellerNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_notifications_total",
			Help: "Per-seller notification outcomes.",
		},
		[]string{"outcome"}, // delivered | failed | skipped_no_contact
	)

	relaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_relays_total",
			Help: "Seller answers relayed to buyers, by kind and outcome.",
		},
		[]string{"kind", "outcome"}, // outcome: delivered | failed | unknown_request | rejected
	)

	requestsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "part_requests_expired_total",
			Help: "Pending requests removed by the sweeper.",
		},
	)
)

func IncDispatch(source string, matched bool) {
	m := "false"
	if matched {
		m = "true"
	}
	requestsDispatchedTotal.WithLabelValues(norm(source), m).Inc()
}

func AddSellerNotifications(outcome string, n int) {
	if n <= 0 {
		return
	}
	sellerNotificationsTotal.WithLabelValues(norm(outcome)).Add(float64(n))
}

func IncRelay(kind, outcome string) {
	relaysTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}

func AddRequestsExpired(n int) {
	if n > 0 {
		requestsExpiredTotal.Add(float64(n))
	}
}
