// Package metrics exposes node activity as prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thanhnp/family-currency/internal/ledger"
)

const namespace = "famcoin"

// Metrics holds the node's collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	blocks       *prometheus.CounterVec
	hashes       prometheus.Counter
	replacements prometheus.Counter
	messages     *prometheus.CounterVec
	peers        prometheus.Gauge
	height       prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_connected_total",
			Help:      "Blocks appended to the chain, by source.",
		}, []string{"source"}),
		hashes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mined_hashes_total",
			Help:      "Hash attempts spent on blocks this node mined.",
		}),
		replacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_replacements_total",
			Help:      "Accepted chain replacements.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "messages_received_total",
			Help:      "Protocol messages received, by type.",
		}, []string{"type"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "peers",
			Help:      "Connected peers.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_height",
			Help:      "Height of the chain tip.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.blocks,
		m.hashes,
		m.replacements,
		m.messages,
		m.peers,
		m.height,
	)
	return m
}

// Attach subscribes to ledger events and exports the pending pool size.
func (m *Metrics) Attach(l *ledger.Ledger) {
	m.height.Set(float64(l.Height()))

	l.OnBlockConnected(func(b *ledger.Block, height int64, source ledger.BlockSource) {
		m.blocks.WithLabelValues(source.String()).Inc()
		m.height.Set(float64(height))
		if source == ledger.SourceMined {
			m.hashes.Add(float64(b.Nonce + 1))
		}
	})
	l.OnChainReplaced(func(_, newChain []*ledger.Block) {
		m.replacements.Inc()
		m.height.Set(float64(len(newChain) - 1))
	})

	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_transactions",
		Help:      "Transactions waiting in the pending pool.",
	}, func() float64 {
		return float64(len(l.Pending()))
	}))
}

// PeersChanged records the current number of peers.
func (m *Metrics) PeersChanged(count int) {
	m.peers.Set(float64(count))
}

// MessageReceived counts an inbound protocol message.
func (m *Metrics) MessageReceived(msgType string) {
	m.messages.WithLabelValues(msgType).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
