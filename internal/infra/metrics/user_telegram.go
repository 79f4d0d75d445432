package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramCommandsReceivedTotal,
		telegramRateLimitTriggeredTotal,
		webAppSubmissionsTotal,
	)
}

var (
	telegramCommandsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_commands_received_total",
			Help: "Counts incoming messages and commands from users.",
		},
		[]string{"command"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	webAppSubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webapp_submissions_total",
			Help: "Mini-app submissions by channel and result.",
		},
		[]string{"channel", "result"}, // channel: telegram | http
	)
)

func IncTelegramCommand(command string) {
	telegramCommandsReceivedTotal.WithLabelValues(norm(command)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncWebAppSubmission(channel, result string) {
	webAppSubmissionsTotal.WithLabelValues(norm(channel), norm(result)).Inc()
}
