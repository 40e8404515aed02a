package session

import (
	"testing"
	"time"
)

func TestEstimatorNoFrames(t *testing.T) {
	e := NewEstimator()
	if e.Sample() != nil {
		t.Fatalf("expected nil sample with no frames")
	}
}

func TestEstimatorPacketLoss(t *testing.T) {
	e := NewEstimator()
	base := time.Now()
	e.OnFrame(0, base)
	e.OnFrame(1, base.Add(20*time.Millisecond))
	// seq 2 never arrives
	e.OnFrame(3, base.Add(40*time.Millisecond))

	q := e.Sample()
	if q == nil || q.PacketLossRate == nil {
		t.Fatalf("missing loss sample")
	}
	// 3 received, 1 lost => 25%
	if *q.PacketLossRate != 25.0 {
		t.Fatalf("loss = %v, want 25", *q.PacketLossRate)
	}
}

func TestEstimatorSteadyFramesLowJitter(t *testing.T) {
	e := NewEstimator()
	base := time.Now()
	for i := 0; i < 50; i++ {
		e.OnFrame(uint32(i), base.Add(time.Duration(i)*frameInterval))
	}
	q := e.Sample()
	if q == nil || q.JitterMS == nil {
		t.Fatalf("missing jitter sample")
	}
	if *q.JitterMS > 0.5 {
		t.Fatalf("jitter = %v for perfectly spaced frames", *q.JitterMS)
	}
	if *q.PacketLossRate != 0 {
		t.Fatalf("loss = %v, want 0", *q.PacketLossRate)
	}
	if *q.MOS < 4.0 {
		t.Fatalf("mos = %v, want >= 4 for clean stream", *q.MOS)
	}
}

func TestMOSFromImpairments(t *testing.T) {
	clean := mosFromImpairments(0, 0)
	if clean < 4.3 || clean > 4.5 {
		t.Errorf("clean mos = %v, want ~4.4", clean)
	}

	degraded := mosFromImpairments(50, 5)
	if degraded >= clean {
		t.Errorf("impairments should lower mos: %v >= %v", degraded, clean)
	}

	floor := mosFromImpairments(200, 50)
	if floor != 1 {
		t.Errorf("severe impairment mos = %v, want clamp to 1", floor)
	}
}
