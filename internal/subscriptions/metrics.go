package subscriptions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bissquit/subtrack/internal/pkg/metrics"
)

var exportedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "subscriptions",
		Name:      "exports_total",
		Help:      "Total export artifacts generated by format",
	},
	[]string{"format"},
)
