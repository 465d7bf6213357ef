package gossip

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// RoundsTotal is the total number of gossip rounds.
	RoundsTotal prometheus.Counter

	// DialsTotal is the total number of peer dials, labelled by result.
	DialsTotal *prometheus.CounterVec

	// PushesTotal is the total number of pushes to a peer, labelled by
	// result.
	PushesTotal *prometheus.CounterVec

	// KeysSentTotal is the total number of keys acknowledged by peers.
	KeysSentTotal prometheus.Counter

	// PoolConnections is the number of pooled peer connections.
	PoolConnections prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RoundsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mergedb",
				Subsystem: "gossip",
				Name:      "rounds_total",
				Help:      "Total number of gossip rounds",
			},
		),
		DialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mergedb",
				Subsystem: "gossip",
				Name:      "dials_total",
				Help:      "Total number of peer dials",
			},
			[]string{"result"},
		),
		PushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mergedb",
				Subsystem: "gossip",
				Name:      "pushes_total",
				Help:      "Total number of pushes to a peer",
			},
			[]string{"result"},
		),
		KeysSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mergedb",
				Subsystem: "gossip",
				Name:      "keys_sent_total",
				Help:      "Total number of keys acknowledged by peers",
			},
		),
		PoolConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mergedb",
				Subsystem: "gossip",
				Name:      "pool_connections",
				Help:      "Number of pooled peer connections",
			},
		),
	}
}

func (m *Metrics) Register(registry *prometheus.Registry) {
	registry.MustRegister(
		m.RoundsTotal,
		m.DialsTotal,
		m.PushesTotal,
		m.KeysSentTotal,
		m.PoolConnections,
	)
}
