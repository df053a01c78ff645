package awards

import (
	"github.com/ichi0g0y/alliance-bot/internal/shared/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	cycles      *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	purgedRows  *prometheus.CounterVec
	lastCycleTS *prometheus.GaugeVec
}

func newMetrics(registry prometheus.Registerer) *engineMetrics {
	factory := promauto.With(nil)
	return &engineMetrics{
		cycles: metrics.Register(registry, factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alliance_award_cycles_total",
			Help: "Award cycles run by tier",
		}, []string{"tier"})),
		outcomes: metrics.Register(registry, factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alliance_award_outcomes_total",
			Help: "Per-award results of award cycles",
		}, []string{"tier", "status"})),
		purgedRows: metrics.Register(registry, factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alliance_activity_purged_rows_total",
			Help: "Activity rows deleted by retention resets",
		}, []string{"tier"})),
		lastCycleTS: metrics.Register(registry, factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "alliance_award_cycle_last_run_timestamp_seconds",
			Help: "Unix time of the last completed award cycle",
		}, []string{"tier"})),
	}
}
