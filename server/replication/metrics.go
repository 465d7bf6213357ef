package replication

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// PropagateTotal is the total number of PropagateData requests,
	// labelled by value type and result.
	PropagateTotal *prometheus.CounterVec

	// GossipTotal is the total number of GossipChanges requests, labelled by
	// result.
	GossipTotal *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		PropagateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mergedb",
				Subsystem: "replication",
				Name:      "propagate_total",
				Help:      "Total number of PropagateData requests",
			},
			[]string{"value_type", "result"},
		),
		GossipTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mergedb",
				Subsystem: "replication",
				Name:      "gossip_total",
				Help:      "Total number of GossipChanges requests",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.PropagateTotal,
		m.GossipTotal,
	)
}
