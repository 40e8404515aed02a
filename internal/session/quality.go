package session

import (
	"math"
	"sync"
	"time"

	"vox/agent/internal/latency"
)

// frameInterval is the nominal spacing of inbound audio frames.
const frameInterval = 20 * time.Millisecond

// Estimator derives an audio-quality sample from the inbound frame stream:
// jitter from inter-arrival deviation (RFC 3550 style smoothing), packet
// loss from sequence gaps, and MOS from a simplified E-model curve.
type Estimator struct {
	mu sync.Mutex

	lastArrival time.Time
	jitterMS    float64

	haveSeq  bool
	nextSeq  uint32
	received uint64
	lost     uint64
}

func NewEstimator() *Estimator { return &Estimator{} }

// OnFrame records one inbound audio frame.
func (e *Estimator) OnFrame(seq uint32, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.lastArrival.IsZero() {
		d := now.Sub(e.lastArrival) - frameInterval
		dev := math.Abs(float64(d) / float64(time.Millisecond))
		e.jitterMS += (dev - e.jitterMS) / 16
	}
	e.lastArrival = now

	if e.haveSeq && seq > e.nextSeq {
		e.lost += uint64(seq - e.nextSeq)
	}
	e.nextSeq = seq + 1
	e.haveSeq = true
	e.received++
}

// Sample produces the quality values for EndCall, or nil when no audio was
// seen at all.
func (e *Estimator) Sample() *latency.Quality {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.received == 0 {
		return nil
	}

	lossPct := 0.0
	if total := e.received + e.lost; total > 0 {
		lossPct = float64(e.lost) / float64(total) * 100
	}
	mos := mosFromImpairments(e.jitterMS, lossPct)
	jitter := e.jitterMS

	return &latency.Quality{
		MOS:            &mos,
		JitterMS:       &jitter,
		PacketLossRate: &lossPct,
	}
}

// mosFromImpairments maps jitter and loss onto a 1–5 MOS via a reduced
// E-model: impairments lower the R factor, and R maps onto MOS with the
// standard cubic.
func mosFromImpairments(jitterMS, lossPct float64) float64 {
	r := 93.2 - 2.5*lossPct - 0.3*jitterMS
	if r < 0 {
		r = 0
	}
	if r > 100 {
		r = 100
	}
	mos := 1 + 0.035*r + 7e-6*r*(r-60)*(100-r)
	if mos < 1 {
		mos = 1
	}
	if mos > 5 {
		mos = 5
	}
	return mos
}
