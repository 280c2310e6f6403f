// Package telemetry holds the prometheus registry and the gossip engine's
// metrics. The registry is private to the process so the /metrics endpoint
// only exposes what murmur itself registers.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	PacketsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "packets_received_total",
			Help:      "UDP datagrams read from the gossip socket.",
		},
	)

	PacketsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "packets_sent_total",
			Help:      "UDP datagrams written to the gossip socket.",
		},
	)

	MessagesVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "messages_verified_total",
			Help:      "Messages accepted by the verifier, by kind.",
		},
		[]string{"kind"},
	)

	MessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by the verifier, by reason.",
		},
		[]string{"reason"},
	)

	PrunesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "murmur",
			Name:      "prunes_sent_total",
			Help:      "Prune messages emitted in response to failed push inserts.",
		},
	)

	CrdsTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "murmur",
			Name:      "crds_table_size",
			Help:      "Number of values in the CRDS table.",
		},
	)

	CrdsOrigins = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "murmur",
			Name:      "crds_origins",
			Help:      "Number of distinct origins in the CRDS table.",
		},
	)
)

func init() {
	Registry.MustRegister(
		PacketsReceived,
		PacketsSent,
		MessagesVerified,
		MessagesDropped,
		PrunesSent,
		CrdsTableSize,
		CrdsOrigins,
	)
}
