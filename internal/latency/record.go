package latency

import "time"

// Record holds the stage timestamps for one call as it moves through the
// pipeline: speech detected, STT, LLM, TTS, audio delivered. The zero
// time.Time is the sentinel for "not yet marked".
//
// The derived latencies are pure functions of the stored timestamps and do
// no validation: if a stage was never marked, the result is meaningless
// (zero or wildly negative). Callers decide whether to trust them.
type Record struct {
	SpeechStart    time.Time
	STTStart       time.Time
	STTEnd         time.Time
	LLMStart       time.Time
	LLMEnd         time.Time
	TTSStart       time.Time
	TTSEnd         time.Time
	AudioDelivered time.Time
}

// NewRecord stamps SpeechStart with the current time; everything else stays
// at the sentinel until the corresponding mark call.
func NewRecord() *Record {
	return &Record{SpeechStart: time.Now()}
}

func (r *Record) STTLatencyMS() float64 {
	return msBetween(r.STTStart, r.STTEnd)
}

func (r *Record) LLMLatencyMS() float64 {
	return msBetween(r.LLMStart, r.LLMEnd)
}

func (r *Record) TTSLatencyMS() float64 {
	return msBetween(r.TTSStart, r.TTSEnd)
}

func (r *Record) EndToEndLatencyMS() float64 {
	return msBetween(r.SpeechStart, r.AudioDelivered)
}

func msBetween(start, end time.Time) float64 {
	return float64(end.Sub(start)) / float64(time.Millisecond)
}
