package store

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// Keys is the number of keys in the store, labelled by value kind.
	Keys *prometheus.GaugeVec

	// MergesTotal is the total number of incoming values merged into the
	// store, labelled by result.
	MergesTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Keys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mergedb",
				Subsystem: "store",
				Name:      "keys",
				Help:      "Number of keys in the store",
			},
			[]string{"kind"},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mergedb",
				Subsystem: "store",
				Name:      "merges_total",
				Help:      "Total number of incoming values merged into the store",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.Keys,
		m.MergesTotal,
	)
}
