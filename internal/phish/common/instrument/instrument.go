// Package instrument exposes Prometheus collectors for the scan pipeline.
package instrument

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline collectors. Collectors are registered once at
// construction; all record methods are safe on a nil receiver so callers can
// run uninstrumented.
type Metrics struct {
	Predictions       *prometheus.CounterVec
	RuleHits          *prometheus.CounterVec
	Scans             prometheus.Counter
	ScanDuration      prometheus.Histogram
	Reloads           *prometheus.CounterVec
	PredictorsLoaded  prometheus.Gauge
	PredictorsHealthy prometheus.Gauge
	RulesetVersion    prometheus.Gauge
	RulesetSources    prometheus.Gauge
}

// New registers the pipeline collectors against reg and returns the bundle.
// A nil reg falls back to the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishagg_predictions_total",
			Help: "Predictor invocations by predictor name and outcome.",
		}, []string{"predictor", "outcome"}),
		RuleHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishagg_rule_hits_total",
			Help: "Blocklist rule hits by source.",
		}, []string{"source"}),
		Scans: factory.NewCounter(prometheus.CounterOpts{
			Name: "phishagg_scans_total",
			Help: "Completed scan batches.",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "phishagg_scan_duration_seconds",
			Help:    "Wall time per scan batch.",
			Buckets: prometheus.DefBuckets,
		}),
		Reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "phishagg_reloads_total",
			Help: "Hot reload attempts by outcome.",
		}, []string{"outcome"}),
		PredictorsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phishagg_predictors_loaded",
			Help: "Predictors currently registered.",
		}),
		PredictorsHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phishagg_predictors_healthy",
			Help: "Predictors currently able to serve.",
		}),
		RulesetVersion: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phishagg_ruleset_version",
			Help: "Version of the active ruleset snapshot.",
		}),
		RulesetSources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "phishagg_ruleset_sources",
			Help: "Sources in the active ruleset snapshot.",
		}),
	}
}

// RecordPrediction counts one predictor invocation.
func (m *Metrics) RecordPrediction(predictor string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.Predictions.WithLabelValues(predictor, outcome).Inc()
}

// RecordRuleHit counts one blocklist hit for source.
func (m *Metrics) RecordRuleHit(source string) {
	if m == nil {
		return
	}
	m.RuleHits.WithLabelValues(source).Inc()
}

// RecordScan counts one finished batch and observes its duration.
func (m *Metrics) RecordScan(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Scans.Inc()
	m.ScanDuration.Observe(elapsed.Seconds())
}

// RecordReload counts one hot reload attempt.
func (m *Metrics) RecordReload(failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.Reloads.WithLabelValues(outcome).Inc()
}

// SetRegistryHealth publishes the registry's loaded and healthy counts.
func (m *Metrics) SetRegistryHealth(total, healthy int) {
	if m == nil {
		return
	}
	m.PredictorsLoaded.Set(float64(total))
	m.PredictorsHealthy.Set(float64(healthy))
}

// SetRulesetInfo publishes the active snapshot's version and source count.
func (m *Metrics) SetRulesetInfo(version uint64, sources int) {
	if m == nil {
		return
	}
	m.RulesetVersion.Set(float64(version))
	m.RulesetSources.Set(float64(sources))
}
