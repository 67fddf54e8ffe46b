package removal

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dunamismax/cutout/internal/inference"
)

type Metrics struct {
	removalsTotal   *prometheus.CounterVec
	removalDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		removalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cutout_removals_total",
			Help: "Background removals by model and outcome.",
		}, []string{"model", "outcome"}),
		removalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cutout_removal_duration_seconds",
			Help:    "Background removal latency including decode and encode.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"model"}),
	}
	reg.MustRegister(m.removalsTotal, m.removalDuration)
	return m
}

func (m *Metrics) observe(model, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := modelLabel(model)
	m.removalsTotal.WithLabelValues(label, outcome).Inc()
	m.removalDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// modelLabel keeps the label set bounded: model names come from clients.
func modelLabel(model string) string {
	if _, ok := inference.LookupModel(model); ok {
		return model
	}
	return "other"
}
