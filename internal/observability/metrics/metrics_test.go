package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPortalMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPortalMetrics(reg)
	m.ObserveCommand("confirm", "ok", 0.2)
	m.ObserveCommand("reject", "business_rejection", 0.1)
	m.ObserveAvailabilityLookup("bulk", "ok")
	m.ObserveAvailabilityLookup("fetch", "error")
}

func TestPortalMetricsNilSafe(t *testing.T) {
	var m *PortalMetrics
	m.ObserveCommand("confirm", "ok", 0.1)
	m.ObserveAvailabilityLookup("bulk", "ok")
}
