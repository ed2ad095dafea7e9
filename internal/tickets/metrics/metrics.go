// Package metrics provides Prometheus metrics for ticket resolution and the vendor client.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ticket resolver collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ResolutionsTotal          *prometheus.CounterVec // by tier, found
	TierOutcomesTotal         *prometheus.CounterVec // by tier, outcome
	ResolveDurationSeconds    prometheus.Histogram
	CacheRecords              prometheus.Gauge
	CacheWriteFailuresTotal   prometheus.Counter
	ListingPagesTotal         prometheus.Counter
	VendorRequestsTotal       *prometheus.CounterVec // by endpoint, result
	VendorRequestDurationSecs *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ResolutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestdesk_ticket_resolutions_total",
			Help: "Ticket resolutions by the tier that answered and whether the ticket was found",
		}, []string{"tier", "found"}),

		TierOutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestdesk_ticket_tier_outcomes_total",
			Help: "Per-tier lookup outcomes (hit, miss, transport_error)",
		}, []string{"tier", "outcome"}),

		ResolveDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nestdesk_ticket_resolve_duration_seconds",
			Help:    "End-to-end ticket resolution latency",
			Buckets: []float64{0.0005, 0.005, 0.05, 0.25, 1, 2.5, 5, 15, 60},
		}),

		CacheRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "nestdesk_ticket_cache_records",
			Help: "Number of records in the ticket cache after the last load or replace",
		}),

		CacheWriteFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "nestdesk_ticket_cache_write_failures_total",
			Help: "Failed atomic cache replacements",
		}),

		ListingPagesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "nestdesk_ticket_listing_pages_total",
			Help: "Listing pages fetched from the vendor",
		}),

		VendorRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nestdesk_ticket_vendor_requests_total",
			Help: "Vendor API calls by endpoint and result category",
		}, []string{"endpoint", "result"}),

		VendorRequestDurationSecs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nestdesk_ticket_vendor_request_duration_seconds",
			Help:    "Vendor API call latency by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) RecordResolution(tier string, found bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(tier, strconv.FormatBool(found)).Inc()
	m.ResolveDurationSeconds.Observe(durationSeconds)
}

func (m *Metrics) RecordTierOutcome(tier, outcome string) {
	if m == nil {
		return
	}
	m.TierOutcomesTotal.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) SetCacheRecords(n int) {
	if m == nil {
		return
	}
	m.CacheRecords.Set(float64(n))
}

func (m *Metrics) IncCacheWriteFailures() {
	if m == nil {
		return
	}
	m.CacheWriteFailuresTotal.Inc()
}

func (m *Metrics) IncListingPages() {
	if m == nil {
		return
	}
	m.ListingPagesTotal.Inc()
}

// ObserveVendorRequest records one vendor call. result is "ok" or an error category.
func (m *Metrics) ObserveVendorRequest(endpoint, result string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.VendorRequestsTotal.WithLabelValues(endpoint, result).Inc()
	m.VendorRequestDurationSecs.WithLabelValues(endpoint).Observe(durationSeconds)
}
