package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmailsSentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_sent_count",
			Help: "Total number of delivery attempts by final status",
		},
		[]string{"status"}, // status: sent, failed
	)

	SendAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "email_send_attempts",
			Help:    "SMTP attempts used per delivery",
			Buckets: []float64{1, 2, 3},
		},
		[]string{"status"},
	)

	PixelFetchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_pixel_fetch_count",
			Help: "Tracking pixel fetches by outcome",
		},
		[]string{"outcome"}, // outcome: opened, repeat, proxy, unknown
	)

	ScheduledPromotedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduled_emails_promoted_count",
			Help: "Deferred entries promoted to dispatch by the scheduler",
		},
	)

	SchedulerTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_tick_duration_seconds",
			Help:    "Duration of one deferred-send scheduler tick",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)
)

func RecordDelivery(status string, attempts int) {
	EmailsSentCount.WithLabelValues(status).Inc()
	SendAttempts.WithLabelValues(status).Observe(float64(attempts))
}

func RecordPixelFetch(outcome string) {
	PixelFetchCount.WithLabelValues(outcome).Inc()
}

func RecordSchedulerTick(promoted int, duration time.Duration) {
	ScheduledPromotedCount.Add(float64(promoted))
	SchedulerTickDuration.Observe(duration.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
