package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.InboundCounter.WithLabelValues("processed").Inc()
	m.DeliveryCounter.WithLabelValues("sent").Add(2)
	m.QueueDepth.Set(3)

	if got := testutil.ToFloat64(m.InboundCounter.WithLabelValues("processed")); got != 1 {
		t.Errorf("inbound processed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DeliveryCounter.WithLabelValues("sent")); got != 2 {
		t.Errorf("deliveries sent = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide when registered separately.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
