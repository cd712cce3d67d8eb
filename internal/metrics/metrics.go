package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateMetrics holds the subsystem's Prometheus collectors.
type RateMetrics struct {
	CyclesTotal      prometheus.CounterVec
	StageErrorsTotal prometheus.CounterVec
	RetriesScheduled prometheus.Counter
	CacheAgeSeconds  prometheus.Gauge
	CacheCryptoCount prometheus.Gauge
	CacheFiatCount   prometheus.Gauge
	TierTransitions  prometheus.CounterVec
}

func NewRateMetrics() *RateMetrics {
	return &RateMetrics{
		CyclesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acquisition_cycles_total",
				Help: "Acquisition cycles by result",
			},
			[]string{"result"},
		),
		StageErrorsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acquisition_stage_errors_total",
				Help: "Failed feed stages by stage name",
			},
			[]string{"stage"},
		),
		RetriesScheduled: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "acquisition_retries_scheduled_total",
				Help: "Early retries armed after failed cycles",
			},
		),
		CacheAgeSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_cache_age_seconds",
				Help: "Seconds since the last successful population",
			},
		),
		CacheCryptoCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_cache_crypto_entries",
				Help: "Crypto rate entries currently cached",
			},
		),
		CacheFiatCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_cache_fiat_entries",
				Help: "Fiat rate entries currently cached",
			},
		),
		TierTransitions: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staleness_tier_transitions_total",
				Help: "Observed staleness tier transitions",
			},
			[]string{"from", "to"},
		),
	}
}
