package ztmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ztpipe/ztpipe/internal/wire"
	"github.com/ztpipe/ztpipe/internal/ztmetrics"
)

const testNWID = 0xAAAA

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := ztmetrics.NewCollector(reg)

	if c.PipesActive == nil {
		t.Error("PipesActive is nil")
	}
	if c.FramesSent == nil {
		t.Error("FramesSent is nil")
	}
	if c.FramesReceived == nil {
		t.Error("FramesReceived is nil")
	}
	if c.FramesDropped == nil {
		t.Error("FramesDropped is nil")
	}
	if c.FragmentsReassembled == nil {
		t.Error("FragmentsReassembled is nil")
	}
	if c.FragmentsEvicted == nil {
		t.Error("FragmentsEvicted is nil")
	}
	if c.ConnectRetries == nil {
		t.Error("ConnectRetries is nil")
	}
	if c.ConnectOutcomes == nil {
		t.Error("ConnectOutcomes is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestFrameCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := ztmetrics.NewCollector(reg)

	c.FrameSent(testNWID, wire.OpData)
	c.FrameSent(testNWID, wire.OpData)
	c.FrameReceived(testNWID, wire.OpConnReq)
	c.FrameDropped(testNWID, wire.OpError, "undecodable")

	if got := counterValue(t, c.FramesSent, "aaaa", "data"); got != 2 {
		t.Errorf("FramesSent = %v, want 2", got)
	}
	if got := counterValue(t, c.FramesReceived, "aaaa", "conn-req"); got != 1 {
		t.Errorf("FramesReceived = %v, want 1", got)
	}
	if got := counterValue(t, c.FramesDropped, "aaaa", "error", "undecodable"); got != 1 {
		t.Errorf("FramesDropped = %v, want 1", got)
	}
}

func TestPipeLifecycleGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := ztmetrics.NewCollector(reg)

	c.PipeEstablished(testNWID)
	c.PipeEstablished(testNWID)
	c.PipeClosed(testNWID)

	if got := gaugeValue(t, c.PipesActive, "aaaa"); got != 1 {
		t.Errorf("PipesActive = %v, want 1", got)
	}
}

func TestConnectCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := ztmetrics.NewCollector(reg)

	c.ConnectRetry(testNWID)
	c.ConnectRetry(testNWID)
	c.ConnectOutcome(testNWID, "accepted")

	if got := counterValue(t, c.ConnectRetries, "aaaa"); got != 2 {
		t.Errorf("ConnectRetries = %v, want 2", got)
	}
	if got := counterValue(t, c.ConnectOutcomes, "aaaa", "accepted"); got != 1 {
		t.Errorf("ConnectOutcomes = %v, want 1", got)
	}
}

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	g, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
