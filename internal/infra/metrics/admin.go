package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminRequestTotal) }

var adminRequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_api_requests_total",
		Help: "Tracks calls to the admin API.",
	},
	[]string{"route", "status"}, // status: 'authorized', 'unauthorized'
)

func IncAdminRequest(route, status string) {
	adminRequestTotal.WithLabelValues(norm(route), norm(status)).Inc()
}
