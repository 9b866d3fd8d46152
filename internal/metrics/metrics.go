package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voting_rooms"

// Collector owns a private registry so tests can build as many as they like.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry    *prometheus.Registry
	rooms       prometheus.Gauge
	members     prometheus.Gauge
	connections prometheus.Gauge
	events      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	revealed    prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms_active",
			Help: "Rooms currently open.",
		}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "members_active",
			Help: "Members across all rooms, simulated ones included.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active",
			Help: "Open websocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_received_total",
			Help: "Inbound events by type.",
		}, []string{"event"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejections_total",
			Help: "Rejections sent to clients by kind.",
		}, []string{"kind"}),
		revealed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rounds_revealed_total",
			Help: "Rounds that reached the revealed phase.",
		}),
	}
	c.registry.MustRegister(
		c.rooms, c.members, c.connections, c.events, c.rejections, c.revealed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) EventReceived(event string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(event).Inc()
}

func (c *Collector) Rejected(kind string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(kind).Inc()
}

func (c *Collector) RoundRevealed() {
	if c == nil {
		return
	}
	c.revealed.Inc()
}

func (c *Collector) SetRooms(n int) {
	if c == nil {
		return
	}
	c.rooms.Set(float64(n))
}

func (c *Collector) SetMembers(n int) {
	if c == nil {
		return
	}
	c.members.Set(float64(n))
}

func (c *Collector) SetConnections(n int) {
	if c == nil {
		return
	}
	c.connections.Set(float64(n))
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler exposes the collector at /metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
