package roles

import (
	"github.com/ichi0g0y/alliance-bot/internal/shared/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type reconcilerMetrics struct {
	mutations *prometheus.CounterVec
}

func newMetrics(registry prometheus.Registerer) *reconcilerMetrics {
	factory := promauto.With(nil)
	return &reconcilerMetrics{
		mutations: metrics.Register(registry, factory.NewCounterVec(prometheus.CounterOpts{
			Name: "alliance_role_mutations_total",
			Help: "Role grants and revocations by outcome",
		}, []string{"op", "result"})),
	}
}
