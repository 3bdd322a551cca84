package metrics

import "github.com/prometheus/client_golang/prometheus"

// PortalMetrics exposes counters/histograms for appointment commands and
// availability lookups.
type PortalMetrics struct {
	commandsTotal     *prometheus.CounterVec
	commandLatency    *prometheus.HistogramVec
	availabilityTotal *prometheus.CounterVec
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicportal",
			Subsystem: "appointments",
			Name:      "commands_total",
			Help:      "Total appointment lifecycle commands by outcome",
		}, []string{"command", "outcome"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicportal",
			Subsystem: "appointments",
			Name:      "command_latency_seconds",
			Help:      "Latency of remote appointment commands",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		availabilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicportal",
			Subsystem: "availability",
			Name:      "lookups_total",
			Help:      "Availability lookups by source and outcome",
		}, []string{"source", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commandsTotal, m.commandLatency, m.availabilityTotal)
	return m
}

func (m *PortalMetrics) ObserveCommand(command, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
	m.commandLatency.WithLabelValues(command).Observe(seconds)
}

func (m *PortalMetrics) ObserveAvailabilityLookup(source, outcome string) {
	if m == nil {
		return
	}
	m.availabilityTotal.WithLabelValues(source, outcome).Inc()
}
