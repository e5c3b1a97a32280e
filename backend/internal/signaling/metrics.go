package signaling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Join outcomes.
const (
	JoinAdmitted = "admitted"
	JoinFull     = "full"
	JoinRejected = "rejected"
)

// Relay drop reasons.
const (
	DropNoRoom    = "no_room"
	DropNoPeer    = "no_peer"
	DropNotMember = "not_member"
	DropSlowPeer  = "slow_peer"
)

// Metrics holds the signaling server's Prometheus collectors.
type Metrics struct {
	Rooms        prometheus.Gauge
	Members      prometheus.Gauge
	Connections  prometheus.Gauge
	Joins        *prometheus.CounterVec
	Leaves       *prometheus.CounterVec
	Relayed      prometheus.Counter
	RelayDropped *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpcall",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		Members: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpcall",
			Name:      "room_members",
			Help:      "Members currently admitted to a room.",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "warpcall",
			Name:      "connections",
			Help:      "Open signaling connections.",
		}),
		Joins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warpcall",
			Name:      "joins_total",
			Help:      "Join requests by outcome.",
		}, []string{"result"}),
		Leaves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warpcall",
			Name:      "leaves_total",
			Help:      "Departures by kind.",
		}, []string{"kind"}),
		Relayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "warpcall",
			Name:      "relayed_messages_total",
			Help:      "Negotiation payloads delivered to a peer.",
		}),
		RelayDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warpcall",
			Name:      "relay_dropped_total",
			Help:      "Negotiation payloads that were not delivered.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) observeRegistry(r *Registry) {
	if m == nil {
		return
	}
	rooms, members := r.Stats()
	m.Rooms.Set(float64(rooms))
	m.Members.Set(float64(members))
}
