package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CatalogMetrics holds the Prometheus collectors of the catalog pipeline.
// A nil *CatalogMetrics is valid and records nothing.
type CatalogMetrics struct {
	SyncRunsTotal          *prometheus.CounterVec
	SyncDuration           *prometheus.HistogramVec
	ProductsUpsertedTotal  *prometheus.CounterVec
	ProductsDeactivated    *prometheus.CounterVec
	SyncWarningsTotal      *prometheus.CounterVec
	BrandMergesTotal       *prometheus.CounterVec
	ProductsRepointedTotal *prometheus.CounterVec
	BrandsPurgedTotal      prometheus.Counter
}

// NewCatalogMetrics registers the catalog collectors on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewCatalogMetrics(reg prometheus.Registerer) *CatalogMetrics {
	f := promauto.With(reg)
	return &CatalogMetrics{
		SyncRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_sync_runs_total",
				Help: "Catalog sync runs by provider and result",
			},
			[]string{"provider", "result"},
		),
		SyncDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_sync_duration_seconds",
				Help:    "Wall time of catalog sync runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~34m
			},
			[]string{"provider"},
		),
		ProductsUpsertedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_products_upserted_total",
				Help: "Products written by catalog sync",
			},
			[]string{"provider"},
		),
		ProductsDeactivated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_products_deactivated_total",
				Help: "Products deactivated because the feed no longer lists them",
			},
			[]string{"provider"},
		),
		SyncWarningsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_sync_warnings_total",
				Help: "Degraded per-brand fetches during catalog sync",
			},
			[]string{"provider", "kind"},
		),
		BrandMergesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_brand_merges_total",
				Help: "Duplicate brand groups merged",
			},
			[]string{"mode", "dry"},
		),
		ProductsRepointedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_products_repointed_total",
				Help: "Products moved to a surviving brand by merge",
			},
			[]string{"mode"},
		),
		BrandsPurgedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_brands_purged_total",
				Help: "Inactive brands permanently deleted",
			},
		),
	}
}

// ObserveSync records one finished sync run.
func (m *CatalogMetrics) ObserveSync(provider, result string, d time.Duration, upserted, deactivated int) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(provider, result).Inc()
	m.SyncDuration.WithLabelValues(provider).Observe(d.Seconds())
	m.ProductsUpsertedTotal.WithLabelValues(provider).Add(float64(upserted))
	m.ProductsDeactivated.WithLabelValues(provider).Add(float64(deactivated))
}

// SyncWarning counts one degraded fetch of kind "products" or "variations".
func (m *CatalogMetrics) SyncWarning(provider, kind string) {
	if m == nil {
		return
	}
	m.SyncWarningsTotal.WithLabelValues(provider, kind).Inc()
}

// BrandMerged counts one merged group and its re-pointed products.
func (m *CatalogMetrics) BrandMerged(mode string, dry bool, repointed int) {
	if m == nil {
		return
	}
	m.BrandMergesTotal.WithLabelValues(mode, strconv.FormatBool(dry)).Inc()
	if !dry {
		m.ProductsRepointedTotal.WithLabelValues(mode).Add(float64(repointed))
	}
}

// BrandsPurged counts hard-deleted brands.
func (m *CatalogMetrics) BrandsPurged(n int) {
	if m == nil {
		return
	}
	m.BrandsPurgedTotal.Add(float64(n))
}
