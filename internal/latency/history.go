package latency

import "sort"

const (
	// historyCap bounds the rolling buffer of completed calls.
	historyCap = 1000
	// statsWindow is how many of the most recent calls Stats considers.
	statsWindow = 100
)

// Stats summarizes end-to-end latency over the recent window. Percentiles
// are index-based (floor(fraction*n) into the ascending sort), matching the
// exposition consumers' expectations; no interpolation.
type Stats struct {
	AvgLatencyMS        float64 `json:"avg_latency_ms"`
	P95LatencyMS        float64 `json:"p95_latency_ms"`
	P99LatencyMS        float64 `json:"p99_latency_ms"`
	MinLatencyMS        float64 `json:"min_latency_ms"`
	MaxLatencyMS        float64 `json:"max_latency_ms"`
	TargetMetPercentage float64 `json:"target_met_percentage"`
}

// History is the bounded rolling buffer of completed call records, oldest
// first. Records are never mutated after they land here.
type History struct {
	records []*Record
}

func newHistory() *History {
	return &History{records: make([]*Record, 0, historyCap)}
}

// append adds a completed record, evicting the oldest when over capacity.
// Caller holds the tracker lock.
func (h *History) append(r *Record) {
	h.records = append(h.records, r)
	if len(h.records) > historyCap {
		n := copy(h.records, h.records[len(h.records)-historyCap:])
		h.records = h.records[:n]
	}
}

func (h *History) len() int { return len(h.records) }

// stats computes the summary over the most recent statsWindow records.
// Empty history yields the zero Stats, not an error.
func (h *History) stats() Stats {
	if len(h.records) == 0 {
		return Stats{}
	}

	recent := h.records
	if len(recent) > statsWindow {
		recent = recent[len(recent)-statsWindow:]
	}

	lat := make([]float64, len(recent))
	for i, r := range recent {
		lat[i] = r.EndToEndLatencyMS()
	}
	sort.Float64s(lat)

	n := len(lat)
	sum := 0.0
	met := 0
	for _, l := range lat {
		sum += l
		if l < TargetMS {
			met++
		}
	}

	return Stats{
		AvgLatencyMS:        sum / float64(n),
		P95LatencyMS:        lat[int(0.95*float64(n))],
		P99LatencyMS:        lat[int(0.99*float64(n))],
		MinLatencyMS:        lat[0],
		MaxLatencyMS:        lat[n-1],
		TargetMetPercentage: float64(met) / float64(n) * 100,
	}
}
