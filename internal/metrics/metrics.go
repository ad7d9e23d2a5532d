package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luciancaetano/kephascord"
)

// Drop reasons recorded on kephascord_events_dropped_total.
const (
	DropSelfAuthored = "self_authored"
	DropUnknownEvent = "unknown_event"
	DropNoHandler    = "no_handler"
	DropHandlerMiss  = "interaction_handler_miss"
	DropBadPayload   = "bad_payload"
)

// Collector holds the gateway session metrics.
type Collector struct {
	FramesReceived   *prometheus.CounterVec
	FramesMalformed  prometheus.Counter
	Dispatched       *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
	HeartbeatsSent   prometheus.Counter
	HeartbeatAcks    prometheus.Counter
	HeartbeatLatency prometheus.Histogram
	State            prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves them
// unregistered, which keeps them usable without exporting anything.
//
// Sessions sharing a registerer share its collectors: a metric already
// registered on reg is reused instead of registered twice.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kephascord_frames_received_total",
			Help: "Gateway frames received, by opcode",
		}, []string{"op"}),
		FramesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kephascord_frames_malformed_total",
			Help: "Inbound frames skipped because they could not be decoded",
		}),
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kephascord_events_dispatched_total",
			Help: "Dispatch events delivered to a handler, by event type",
		}, []string{"event"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kephascord_events_dropped_total",
			Help: "Dispatch events not delivered, by reason",
		}, []string{"reason"}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kephascord_heartbeats_sent_total",
			Help: "Heartbeat frames sent",
		}),
		HeartbeatAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kephascord_heartbeat_acks_total",
			Help: "Heartbeat acknowledgements received",
		}),
		HeartbeatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kephascord_heartbeat_latency_seconds",
			Help:    "Round trip between a heartbeat and its acknowledgement",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kephascord_session_state",
			Help: "Current session state (0 connecting .. 5 closed)",
		}),
	}
	c.State.Set(float64(kephascord.StateClosed))

	if reg != nil {
		c.FramesReceived = register(reg, c.FramesReceived)
		c.FramesMalformed = register(reg, c.FramesMalformed)
		c.Dispatched = register(reg, c.Dispatched)
		c.Dropped = register(reg, c.Dropped)
		c.HeartbeatsSent = register(reg, c.HeartbeatsSent)
		c.HeartbeatAcks = register(reg, c.HeartbeatAcks)
		c.HeartbeatLatency = register(reg, c.HeartbeatLatency)
		c.State = register(reg, c.State)
	}
	return c
}

// register adds c to reg, or returns the equivalent collector reg already
// holds. Any other registration error is a programming error and panics.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(err)
}

func (c *Collector) FrameReceived(op kephascord.Opcode) {
	c.FramesReceived.WithLabelValues(op.String()).Inc()
}

func (c *Collector) Malformed() {
	c.FramesMalformed.Inc()
}

func (c *Collector) Dispatch(event kephascord.EventType) {
	c.Dispatched.WithLabelValues(string(event)).Inc()
}

func (c *Collector) Drop(reason string) {
	c.Dropped.WithLabelValues(reason).Inc()
}

func (c *Collector) HeartbeatSent() {
	c.HeartbeatsSent.Inc()
}

func (c *Collector) HeartbeatAcked(latency time.Duration) {
	c.HeartbeatAcks.Inc()
	c.HeartbeatLatency.Observe(latency.Seconds())
}

func (c *Collector) SetState(s kephascord.State) {
	c.State.Set(float64(s))
}
