package metrics

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolCollector exports pgxpool statistics at scrape time.
type PoolCollector struct {
	pool *pgxpool.Pool

	conns        *prometheus.Desc
	acquires     *prometheus.Desc
	emptyAcquire *prometheus.Desc
	acquireWait  *prometheus.Desc
}

// NewPoolCollector creates a collector for pool.
func NewPoolCollector(pool *pgxpool.Pool) *PoolCollector {
	return &PoolCollector{
		pool: pool,
		conns: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "db", "pool_connections"),
			"Number of database connections by state",
			[]string{"state"}, nil,
		),
		acquires: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "db", "pool_acquires_total"),
			"Cumulative number of successful connection acquires",
			nil, nil,
		),
		emptyAcquire: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "db", "pool_empty_acquires_total"),
			"Cumulative number of acquires that waited for a connection",
			nil, nil,
		),
		acquireWait: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "db", "pool_acquire_wait_seconds_total"),
			"Total time spent waiting for a connection",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.conns
	ch <- c.acquires
	ch <- c.emptyAcquire
	ch <- c.acquireWait
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()

	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.AcquiredConns()), "in_use")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.IdleConns()), "idle")
	ch <- prometheus.MustNewConstMetric(c.conns, prometheus.GaugeValue, float64(s.MaxConns()), "max")
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.acquireWait, prometheus.CounterValue, s.AcquireDuration().Seconds())
}

// RegisterPool registers a PoolCollector with the default registry. A collector
// registered earlier in the same process is replaced.
func RegisterPool(pool *pgxpool.Pool) error {
	c := NewPoolCollector(pool)
	err := prometheus.Register(c)

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		prometheus.Unregister(already.ExistingCollector)
		return prometheus.Register(c)
	}
	return err
}
