package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m.PacketsSent == nil || m.PacketsReceived == nil {
		t.Fatal("packet counters not created")
	}
	if m.SessionsFailed == nil || m.UnexpectedPackets == nil {
		t.Fatal("labelled counters not created")
	}
	if m.RTT == nil || m.ResolutionLatency == nil {
		t.Fatal("histograms not created")
	}
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.PacketsSent.Inc()
	m.PacketsSent.Inc()
	m.PacketsReceived.Inc()
	m.UnexpectedPackets.WithLabelValues("bad checksum").Inc()
	m.SessionsFailed.WithLabelValues("resolution").Inc()

	if got := testutil.ToFloat64(m.PacketsSent); got != 2 {
		t.Errorf("packets_sent_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PacketsReceived); got != 1 {
		t.Errorf("packets_received_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.UnexpectedPackets.WithLabelValues("bad checksum")); got != 1 {
		t.Errorf("unexpected_packets_total = %v, want 1", got)
	}
}

func TestSessionsActiveGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.SessionsActive.Inc()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	m.SessionsActive.Dec()
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("sessions_active = %v, want 0", got)
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default() returned different instances")
	}
}
