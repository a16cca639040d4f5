// Package metrics exposes warehouse state to prometheus. Gauges are read
// from the database on every scrape; counters are fed by the sync pipeline
// and the hierarchy service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/campaign-warehouse/internal/pkg/logger"
	"github.com/ignite/campaign-warehouse/internal/repository/sqlstore"
)

const namespace = "warehouse"

// Source provides the values behind the gauges.
type Source interface {
	Counts(ctx context.Context) (*sqlstore.Counts, error)
	ConfidenceBuckets(ctx context.Context) (map[string]int, error)
}

// Collector holds the warehouse metrics.
type Collector struct {
	src Source

	campaigns       prometheus.Gauge
	hourlyRows      prometheus.Gauge
	mappedRatio     prometheus.Gauge
	activeOverrides prometheus.Gauge
	confidence      *prometheus.GaugeVec

	syncRuns *prometheus.CounterVec
	upserts  *prometheus.CounterVec
}

// New creates a Collector reading gauges from src.
func New(src Source) *Collector {
	c := &Collector{src: src}

	c.campaigns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "campaigns_total",
		Help:      "Campaigns stored in the warehouse",
	})
	c.hourlyRows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hourly_rows_total",
		Help:      "Hourly metric rows stored in the warehouse",
	})
	c.mappedRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hierarchy_mapped_ratio",
		Help:      "Share of hierarchy rows with a known network",
	})
	c.activeOverrides = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_overrides",
		Help:      "Campaigns with an active manual override",
	})
	c.confidence = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hierarchy_confidence",
		Help:      "Hierarchy rows per mapping confidence bucket (high, medium, low)",
	}, []string{"bucket"})

	c.syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_runs_total",
		Help:      "Finished sync runs by status",
	}, []string{"status"})
	c.upserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hierarchy_upserts_total",
		Help:      "Hierarchy rows written, by what triggered the write",
	}, []string{"source"})

	return c
}

// Register adds every metric to reg.
func (c *Collector) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.campaigns,
		c.hourlyRows,
		c.mappedRatio,
		c.activeOverrides,
		c.confidence,
		c.syncRuns,
		c.upserts,
	)
}

// SyncRun counts a finished sync run.
func (c *Collector) SyncRun(status string) {
	c.syncRuns.WithLabelValues(status).Inc()
}

// HierarchyUpsert counts a hierarchy write. It matches the hierarchy
// service upsert hook signature.
func (c *Collector) HierarchyUpsert(source string) {
	c.upserts.WithLabelValues(source).Inc()
}

// Refresh recomputes the gauges.
func (c *Collector) Refresh(ctx context.Context) error {
	counts, err := c.src.Counts(ctx)
	if err != nil {
		return err
	}
	c.campaigns.Set(float64(counts.Campaigns))
	c.hourlyRows.Set(float64(counts.HourlyRows))
	c.mappedRatio.Set(counts.MappedRatio())
	c.activeOverrides.Set(float64(counts.ActiveOverrides))

	buckets, err := c.src.ConfidenceBuckets(ctx)
	if err != nil {
		return err
	}
	c.confidence.Reset()
	for bucket, n := range buckets {
		c.confidence.WithLabelValues(bucket).Set(float64(n))
	}
	return nil
}

// Handler refreshes the gauges and serves the metrics gathered by g.
// A failed refresh is logged and the previous values are served.
func (c *Collector) Handler(g prometheus.Gatherer) http.Handler {
	h := promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		if err := c.Refresh(ctx); err != nil {
			logger.Warn("metrics: refresh failed", "error", err)
		}
		cancel()
		h.ServeHTTP(w, r)
	})
}
