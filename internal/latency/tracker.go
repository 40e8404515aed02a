package latency

import (
	"errors"
	"log"
	"sync"
	"time"

	"vox/agent/internal/metrics"
)

// TargetMS is the end-to-end latency SLA threshold. A call strictly under it
// counts as target-met.
const TargetMS = 600.0

var (
	// ErrStaleMark is returned in strict mode when a mark or end arrives for
	// a call id that is not active (late, duplicate, or never started).
	ErrStaleMark = errors.New("latency: no active call for id")
	// ErrDuplicateCall is returned in strict mode when StartCall would
	// overwrite a live record.
	ErrDuplicateCall = errors.New("latency: call id already active")
)

// Quality carries the optional audio-quality sample supplied at call end.
// Nil fields are simply not observed; quality never lands in history.
type Quality struct {
	MOS            *float64
	JitterMS       *float64
	PacketLossRate *float64
}

// Tracker owns the mapping of active calls and mediates every stage
// transition. All methods are safe for concurrent use.
//
// In the default (lenient) mode, marks and ends for unknown call ids are
// silent no-ops: the session runtime may deliver events late or after call
// end, and dropping them is preferable to failing the call path. Strict mode
// surfaces those as ErrStaleMark / ErrDuplicateCall for tests and callers
// that want fail-fast behavior.
type Tracker struct {
	mu      sync.Mutex
	active  map[string]*Record
	history *History

	sink   *metrics.Sink
	strict bool
}

type Option func(*Tracker)

// WithStrict makes unknown-id marks and duplicate starts return errors
// instead of no-ops.
func WithStrict() Option {
	return func(t *Tracker) { t.strict = true }
}

func NewTracker(sink *metrics.Sink, opts ...Option) *Tracker {
	t := &Tracker{
		active:  make(map[string]*Record),
		history: newHistory(),
		sink:    sink,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// StartCall begins tracking a call. In lenient mode a duplicate id silently
// replaces the prior record, discarding its partial data.
func (t *Tracker) StartCall(callID string) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[callID]; ok && t.strict {
		return nil, ErrDuplicateCall
	}
	r := NewRecord()
	t.active[callID] = r
	t.sink.TotalCalls.Inc()
	t.sink.ActiveCalls.Set(float64(len(t.active)))
	log.Printf("[latency] tracking call %s", callID)
	return r, nil
}

func (t *Tracker) MarkSTTStart(callID string) error {
	return t.mark(callID, func(r *Record, now time.Time) { r.STTStart = now })
}

func (t *Tracker) MarkSTTEnd(callID string) error {
	return t.mark(callID, func(r *Record, now time.Time) { r.STTEnd = now })
}

func (t *Tracker) MarkLLMStart(callID string) error {
	return t.mark(callID, func(r *Record, now time.Time) { r.LLMStart = now })
}

func (t *Tracker) MarkLLMEnd(callID string) error {
	return t.mark(callID, func(r *Record, now time.Time) { r.LLMEnd = now })
}

func (t *Tracker) MarkTTSStart(callID string) error {
	return t.mark(callID, func(r *Record, now time.Time) { r.TTSStart = now })
}

func (t *Tracker) MarkTTSEnd(callID string) error {
	return t.mark(callID, func(r *Record, now time.Time) { r.TTSEnd = now })
}

func (t *Tracker) MarkAudioDelivered(callID string) error {
	return t.mark(callID, func(r *Record, now time.Time) { r.AudioDelivered = now })
}

func (t *Tracker) mark(callID string, set func(*Record, time.Time)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.active[callID]
	if !ok {
		if t.strict {
			return ErrStaleMark
		}
		return nil
	}
	set(r, time.Now())
	return nil
}

// EndCall finalizes a call: the record leaves the active map, its latencies
// are observed into the sink, the end-to-end value is classified against
// TargetMS, any quality sample is observed, and the record moves to history.
func (t *Tracker) EndCall(callID string, q *Quality) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.active[callID]
	if !ok {
		if t.strict {
			return ErrStaleMark
		}
		return nil
	}
	delete(t.active, callID)
	t.sink.ActiveCalls.Set(float64(len(t.active)))

	// A call that ends before audio went out still gets a defined
	// end-to-end value: delivery is pinned to the moment the call ended.
	if r.AudioDelivered.IsZero() {
		r.AudioDelivered = time.Now()
	}

	e2e := r.EndToEndLatencyMS()
	t.sink.EndToEndLatency.Observe(e2e)
	t.sink.STTLatency.Observe(r.STTLatencyMS())
	t.sink.LLMLatency.Observe(r.LLMLatencyMS())
	t.sink.TTSLatency.Observe(r.TTSLatencyMS())
	t.sink.ResponseTimeAvg.Observe(e2e)
	t.sink.ResponseTime95P.Observe(e2e)

	if e2e < TargetMS {
		t.sink.TargetMet.Inc()
	} else {
		t.sink.TargetMissed.Inc()
	}

	if q != nil {
		if q.MOS != nil {
			t.sink.MOSScore.Observe(*q.MOS)
		}
		if q.JitterMS != nil {
			t.sink.JitterMS.Observe(*q.JitterMS)
		}
		if q.PacketLossRate != nil {
			t.sink.PacketLoss.Observe(*q.PacketLossRate)
		}
	}

	t.history.append(r)
	log.Printf("[latency] call %s ended e2e=%.2fms", callID, e2e)
	return nil
}

// RecordFailedCallSetup counts a call that failed before a record could
// meaningfully track it. Not tied to any call id.
func (t *Tracker) RecordFailedCallSetup() {
	t.sink.FailedCallSetup.Inc()
}

// ActiveCount reports the number of started-but-not-ended calls.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// ActiveIDs lists the ids of currently tracked calls.
func (t *Tracker) ActiveIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.active))
	for id := range t.active {
		out = append(out, id)
	}
	return out
}

// HistoryLen reports how many completed records the rolling buffer holds.
func (t *Tracker) HistoryLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.len()
}

// Stats summarizes end-to-end latency over the recent completed calls.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.stats()
}
