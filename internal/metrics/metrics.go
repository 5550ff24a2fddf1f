// Package metrics exposes Prometheus instruments for a tracker session.
//
// Instruments are registered against a caller-supplied registry rather than
// the global default, so independent sessions (and tests) never collide.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wormhole"

// Metrics groups the counters and gauges updated by the merger and tracker.
type Metrics struct {
	envelopes  prometheus.Counter
	dropped    *prometheus.CounterVec
	redraws    prometheus.Counter
	recoveries prometheus.Counter
	resets     prometheus.Counter
	backups    *prometheus.CounterVec
	messages   *prometheus.CounterVec
	nodes      prometheus.Gauge
	links      prometheus.Gauge
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		envelopes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_applied_total",
			Help:      "Non-empty update envelopes merged into the graph.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_dropped_total",
			Help:      "Update fragments skipped because they were malformed.",
		}, []string{"fragment"}),
		redraws: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redraws_total",
			Help:      "Frames handed to the renderer.",
		}),
		recoveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Full snapshot replacements applied.",
		}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resets_total",
			Help:      "Operator resets applied.",
		}),
		backups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup snapshots sent to the server, by result.",
		}, []string{"result"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound transport messages, by kind.",
		}, []string{"kind"}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Systems currently in the graph.",
		}),
		links: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_links",
			Help:      "Links currently in the graph.",
		}),
	}
}

// EnvelopeApplied counts one merged envelope.
func (m *Metrics) EnvelopeApplied() {
	if m == nil {
		return
	}
	m.envelopes.Inc()
}

// FragmentDropped counts a skipped fragment ("node", "link", "snapshot").
func (m *Metrics) FragmentDropped(fragment string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(fragment).Inc()
}

// Redrawn counts a frame and records the graph size it showed.
func (m *Metrics) Redrawn(nodes, links int) {
	if m == nil {
		return
	}
	m.redraws.Inc()
	m.nodes.Set(float64(nodes))
	m.links.Set(float64(links))
}

// Recovered counts a snapshot replacement.
func (m *Metrics) Recovered() {
	if m == nil {
		return
	}
	m.recoveries.Inc()
}

// Reset counts an operator reset and zeroes the size gauges.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.resets.Inc()
	m.nodes.Set(0)
	m.links.Set(0)
}

// BackupSent counts a backup attempt by outcome.
func (m *Metrics) BackupSent(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.backups.WithLabelValues(result).Inc()
}

// MessageReceived counts an inbound message by kind.
func (m *Metrics) MessageReceived(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}
