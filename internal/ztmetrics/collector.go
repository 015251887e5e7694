// Package ztmetrics exposes adapter-engine counters and gauges as
// Prometheus metrics.
package ztmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ztpipe/ztpipe/internal/wire"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "ztpipe"
	subsystem = "engine"
)

// Label names for engine metrics.
const (
	labelNWID    = "nwid"
	labelOpcode  = "opcode"
	labelReason  = "reason"
	labelOutcome = "outcome"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Engine Metrics
// -------------------------------------------------------------------------

// Collector holds every Prometheus metric the protocol engine reports
// through (*ztproto.Manager)'s MetricsReporter collaborator, plus the
// pipe-lifecycle gauge and fragment-eviction counter that sit outside
// MetricsReporter.
type Collector struct {
	// PipesActive tracks the number of currently established pipes, per
	// network id. Incremented on pipe creation, decremented on teardown.
	PipesActive *prometheus.GaugeVec

	// FramesSent counts wire frames transmitted, per network id and opcode.
	FramesSent *prometheus.CounterVec

	// FramesReceived counts wire frames successfully demultiplexed, per
	// network id and opcode.
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts wire frames discarded before delivery, per
	// network id, opcode, and drop reason.
	FramesDropped *prometheus.CounterVec

	// FragmentsReassembled counts data fragments the Fragment Reassembly
	// Buffer ingested without error, per network id.
	FragmentsReassembled *prometheus.CounterVec

	// FragmentsEvicted counts partial messages the reassembly buffer
	// discarded for staleness or memory pressure, per network id.
	FragmentsEvicted *prometheus.CounterVec

	// ConnectRetries counts connect-request retransmissions, per network id.
	ConnectRetries *prometheus.CounterVec

	// ConnectOutcomes counts connect() completions, per network id and
	// outcome (success, refused, error). A connect that exhausts its
	// retries is not counted here.
	ConnectOutcomes *prometheus.CounterVec
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PipesActive,
		c.FramesSent,
		c.FramesReceived,
		c.FramesDropped,
		c.FragmentsReassembled,
		c.FragmentsEvicted,
		c.ConnectRetries,
		c.ConnectOutcomes,
	)

	return c
}

func newMetrics() *Collector {
	nwidLabels := []string{labelNWID}
	opLabels := []string{labelNWID, labelOpcode}
	dropLabels := []string{labelNWID, labelOpcode, labelReason}
	outcomeLabels := []string{labelNWID, labelOutcome}

	return &Collector{
		PipesActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pipes_active",
			Help:      "Number of currently established pipes.",
		}, nwidLabels),

		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_sent_total",
			Help:      "Total wire frames transmitted.",
		}, opLabels),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_received_total",
			Help:      "Total wire frames successfully demultiplexed.",
		}, opLabels),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_dropped_total",
			Help:      "Total wire frames discarded before delivery.",
		}, dropLabels),

		FragmentsReassembled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fragments_reassembled_total",
			Help:      "Total data fragments ingested by the fragment reassembly buffer.",
		}, nwidLabels),

		FragmentsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fragments_evicted_total",
			Help:      "Total partial messages discarded for staleness or memory pressure.",
		}, nwidLabels),

		ConnectRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_retries_total",
			Help:      "Total connect-request retransmissions.",
		}, nwidLabels),

		ConnectOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connect_outcomes_total",
			Help:      "Total connect() completions by outcome.",
		}, outcomeLabels),
	}
}

// -------------------------------------------------------------------------
// ztproto.MetricsReporter
// -------------------------------------------------------------------------

// FrameSent implements ztproto.MetricsReporter.
func (c *Collector) FrameSent(nwid uint64, op wire.Opcode) {
	c.FramesSent.WithLabelValues(nwidLabel(nwid), op.String()).Inc()
}

// FrameReceived implements ztproto.MetricsReporter.
func (c *Collector) FrameReceived(nwid uint64, op wire.Opcode) {
	c.FramesReceived.WithLabelValues(nwidLabel(nwid), op.String()).Inc()
}

// FrameDropped implements ztproto.MetricsReporter.
func (c *Collector) FrameDropped(nwid uint64, op wire.Opcode, reason string) {
	c.FramesDropped.WithLabelValues(nwidLabel(nwid), op.String(), reason).Inc()
}

// FragmentReassembled implements ztproto.MetricsReporter.
func (c *Collector) FragmentReassembled(nwid uint64) {
	c.FragmentsReassembled.WithLabelValues(nwidLabel(nwid)).Inc()
}

// ConnectRetry implements ztproto.MetricsReporter.
func (c *Collector) ConnectRetry(nwid uint64) {
	c.ConnectRetries.WithLabelValues(nwidLabel(nwid)).Inc()
}

// ConnectOutcome implements ztproto.MetricsReporter.
func (c *Collector) ConnectOutcome(nwid uint64, outcome string) {
	c.ConnectOutcomes.WithLabelValues(nwidLabel(nwid), outcome).Inc()
}

// -------------------------------------------------------------------------
// Pipe lifecycle / reassembly eviction — not part of MetricsReporter.
// cmd/ztpiped updates the pipe gauge from a ztproto.StateCallback;
// nothing in the engine calls FragmentEvicted.
// -------------------------------------------------------------------------

// PipeEstablished increments the active-pipes gauge for nwid.
func (c *Collector) PipeEstablished(nwid uint64) {
	c.PipesActive.WithLabelValues(nwidLabel(nwid)).Inc()
}

// PipeClosed decrements the active-pipes gauge for nwid.
func (c *Collector) PipeClosed(nwid uint64) {
	c.PipesActive.WithLabelValues(nwidLabel(nwid)).Dec()
}

// FragmentEvicted increments the fragment-eviction counter for nwid.
func (c *Collector) FragmentEvicted(nwid uint64) {
	c.FragmentsEvicted.WithLabelValues(nwidLabel(nwid)).Inc()
}

func nwidLabel(nwid uint64) string {
	return strconv.FormatUint(nwid, 16)
}
