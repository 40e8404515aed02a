package sysmon

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/procfs"

	"vox/agent/internal/metrics"
)

// Sampler periodically reads host CPU and memory usage from /proc and pushes
// them into the sink gauges. A failed tick is logged and the loop keeps
// going; only context cancellation stops it.
type Sampler struct {
	fs       procfs.FS
	sink     *metrics.Sink
	interval time.Duration

	prev    procfs.CPUStat
	hasPrev bool
}

func New(sink *metrics.Sink, interval time.Duration) (*Sampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("sysmon: open procfs: %w", err)
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sampler{fs: fs, sink: sink, interval: interval}, nil
}

// Run blocks until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("[sysmon] sampling every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sysmon] stopped")
			return
		case <-ticker.C:
			if err := s.sampleOnce(); err != nil {
				log.Printf("[sysmon] sample: %v", err)
			}
		}
	}
}

// sampleOnce takes one CPU + memory reading. CPU percent needs a previous
// /proc/stat snapshot to diff against, so the very first call only primes
// the baseline.
func (s *Sampler) sampleOnce() error {
	stat, err := s.fs.Stat()
	if err != nil {
		return fmt.Errorf("read stat: %w", err)
	}
	cur := stat.CPUTotal
	if s.hasPrev {
		s.sink.CPUUsage.Set(cpuPercent(s.prev, cur))
	}
	s.prev = cur
	s.hasPrev = true

	mem, err := s.fs.Meminfo()
	if err != nil {
		return fmt.Errorf("read meminfo: %w", err)
	}
	if mem.MemTotal != nil && mem.MemAvailable != nil {
		usedKB := *mem.MemTotal - *mem.MemAvailable
		s.sink.MemoryUsage.Set(float64(usedKB) / 1024.0)
	}
	return nil
}

// cpuPercent derives utilization from two cumulative /proc/stat readings.
func cpuPercent(prev, cur procfs.CPUStat) float64 {
	prevIdle := prev.Idle + prev.Iowait
	curIdle := cur.Idle + cur.Iowait
	prevTotal := cpuTotal(prev)
	curTotal := cpuTotal(cur)

	totald := curTotal - prevTotal
	if totald <= 0 {
		return 0
	}
	busy := totald - (curIdle - prevIdle)
	if busy < 0 {
		busy = 0
	}
	return busy / totald * 100
}

func cpuTotal(c procfs.CPUStat) float64 {
	return c.User + c.Nice + c.System + c.Idle + c.Iowait + c.IRQ + c.SoftIRQ + c.Steal
}
