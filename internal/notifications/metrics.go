package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bissquit/subtrack/internal/domain"
	"github.com/bissquit/subtrack/internal/pkg/metrics"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "notifications",
		Name:      "deliveries_total",
		Help:      "Delivery attempts by channel and outcome.",
	}, []string{"channel", "outcome"})

	deliveryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "notifications",
		Name:      "delivery_duration_seconds",
		Help:      "Duration of successful deliveries.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"channel"})

	queueClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "notifications",
		Name:      "queue_claimed_total",
		Help:      "Queue items claimed by workers.",
	})

	queueItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "notifications",
		Name:      "queue_items",
		Help:      "Queue items by status at the last stats run.",
	}, []string{"status"})

	reminderScans = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "reminders",
		Name:      "scans_total",
		Help:      "Completed reminder scans.",
	})

	remindersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "reminders",
		Name:      "processed_total",
		Help:      "Due payments seen by reminder scans by outcome.",
	}, []string{"outcome"})
)

func observeDelivery(channel domain.ChannelType, outcome deliveryOutcome, took time.Duration) {
	deliveriesTotal.WithLabelValues(string(channel), string(outcome)).Inc()
	if outcome == outcomeSent {
		deliveryDuration.WithLabelValues(string(channel)).Observe(took.Seconds())
	}
}

func observeReminderScan(result ScanResult) {
	reminderScans.Inc()
	remindersTotal.WithLabelValues("enqueued").Add(float64(result.Enqueued))
	remindersTotal.WithLabelValues("duplicate").Add(float64(result.Duplicates))
	remindersTotal.WithLabelValues("error").Add(float64(result.Errors))
}

func observeQueueStats(stats *QueueStats) {
	queueItems.WithLabelValues(string(QueueStatusPending)).Set(float64(stats.Pending))
	queueItems.WithLabelValues(string(QueueStatusProcessing)).Set(float64(stats.Processing))
	queueItems.WithLabelValues(string(QueueStatusSent)).Set(float64(stats.Sent))
	queueItems.WithLabelValues(string(QueueStatusFailed)).Set(float64(stats.Failed))
}
