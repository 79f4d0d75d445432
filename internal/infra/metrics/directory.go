package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(directorySellers, directoryReloadsTotal) }

var (
	directorySellers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "seller_directory_size",
			Help: "Number of sellers in the currently loaded roster.",
		},
	)

	directoryReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seller_directory_reloads_total",
			Help: "Roster loads by result.",
		},
		[]string{"result"}, // ok | failed
	)
)

func SetDirectorySize(n int) { directorySellers.Set(float64(n)) }

func IncDirectoryReload(result string) {
	directoryReloadsTotal.WithLabelValues(norm(result)).Inc()
}
