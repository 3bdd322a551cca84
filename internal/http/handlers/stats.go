package handlers

import (
	"math"
	"net/http"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vidaplena/clinic-portal/pkg/logging"
)

const (
	commandsTotalFamily  = "clinicportal_appointments_commands_total"
	commandLatencyFamily = "clinicportal_appointments_command_latency_seconds"
	availabilityFamily   = "clinicportal_availability_lookups_total"
)

// StatsHandler serves an operational snapshot of the command metrics,
// read back from the prometheus registry so the numbers always agree
// with /metrics.
type StatsHandler struct {
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

func NewStatsHandler(gatherer prometheus.Gatherer, logger *logging.Logger) *StatsHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatsHandler{gatherer: gatherer, logger: logger}
}

type CommandStat struct {
	Command  string           `json:"command"`
	Total    int64            `json:"total"`
	Outcomes map[string]int64 `json:"outcomes"`
}

type LatencySnapshot struct {
	SampleCount uint64  `json:"sample_count"`
	AvgSeconds  float64 `json:"avg_seconds"`
	P95Seconds  float64 `json:"p95_seconds"`
}

type AvailabilityStat struct {
	Source   string           `json:"source"`
	Total    int64            `json:"total"`
	Outcomes map[string]int64 `json:"outcomes"`
}

type OpsSnapshot struct {
	Commands     []CommandStat      `json:"commands"`
	Latency      LatencySnapshot    `json:"latency"`
	Availability []AvailabilityStat `json:"availability"`
}

// GetSnapshot handles GET /api/stats.
func (h *StatsHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	mfs, err := h.gatherer.Gather()
	if err != nil {
		h.logger.Error("failed to gather metrics", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	snapshot := OpsSnapshot{
		Commands:     snapshotCounters(mfs, commandsTotalFamily, "command"),
		Latency:      snapshotLatency(mfs),
		Availability: snapshotAvailability(mfs),
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func snapshotCounters(mfs []*dto.MetricFamily, familyName, keyLabel string) []CommandStat {
	family := findFamily(mfs, familyName)
	if family == nil {
		return []CommandStat{}
	}

	byKey := map[string]map[string]int64{}
	for _, metric := range family.Metric {
		if metric == nil || metric.GetCounter() == nil {
			continue
		}
		key := labelValue(metric, keyLabel)
		outcome := labelValue(metric, "outcome")
		if key == "" {
			continue
		}
		if byKey[key] == nil {
			byKey[key] = map[string]int64{}
		}
		byKey[key][outcome] += int64(metric.GetCounter().GetValue())
	}

	stats := make([]CommandStat, 0, len(byKey))
	for key, outcomes := range byKey {
		var total int64
		for _, n := range outcomes {
			total += n
		}
		stats = append(stats, CommandStat{Command: key, Total: total, Outcomes: outcomes})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Command < stats[j].Command })
	return stats
}

func snapshotAvailability(mfs []*dto.MetricFamily) []AvailabilityStat {
	counters := snapshotCounters(mfs, availabilityFamily, "source")
	stats := make([]AvailabilityStat, 0, len(counters))
	for _, c := range counters {
		stats = append(stats, AvailabilityStat{Source: c.Command, Total: c.Total, Outcomes: c.Outcomes})
	}
	return stats
}

// snapshotLatency aggregates the latency histogram across commands and
// estimates p95 from the cumulative buckets.
func snapshotLatency(mfs []*dto.MetricFamily) LatencySnapshot {
	family := findFamily(mfs, commandLatencyFamily)
	if family == nil {
		return LatencySnapshot{}
	}

	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	var sampleSum float64

	for _, metric := range family.Metric {
		if metric == nil {
			continue
		}
		hist := metric.GetHistogram()
		if hist == nil {
			continue
		}
		sampleCount += hist.GetSampleCount()
		sampleSum += hist.GetSampleSum()
		for _, b := range hist.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if sampleCount == 0 {
		return LatencySnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	target := uint64(math.Ceil(float64(sampleCount) * 0.95))
	p95 := 0.0
	for _, upper := range uppers {
		if cumulativeByUpper[upper] >= target {
			if !math.IsInf(upper, 1) {
				p95 = upper
			}
			break
		}
		if !math.IsInf(upper, 1) {
			p95 = upper
		}
	}

	return LatencySnapshot{
		SampleCount: sampleCount,
		AvgSeconds:  sampleSum / float64(sampleCount),
		P95Seconds:  p95,
	}
}

func findFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, label := range metric.Label {
		if label != nil && label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}
