package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewBindsAndServes(t *testing.T) {
	s, err := New(0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer s.Shutdown(context.Background())

	s.TotalCalls.Inc()
	s.EndToEndLatency.Observe(420)

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if !strings.Contains(text, "voice_agent_total_calls 1") {
		t.Errorf("exposition missing total calls counter:\n%s", text)
	}
	if !strings.Contains(text, "voice_agent_end_to_end_latency_ms_bucket") {
		t.Errorf("exposition missing e2e latency buckets")
	}
	if !strings.Contains(text, "voice_agent_mos_score") {
		t.Errorf("exposition missing mos histogram")
	}
}

func TestNewFailsOnBoundPort(t *testing.T) {
	first, err := New(0)
	if err != nil {
		t.Fatalf("first sink: %v", err)
	}
	defer first.Shutdown(context.Background())

	// Addr may be "[::]:port" on dual-stack hosts, so split properly.
	_, portStr, err := net.SplitHostPort(first.Addr())
	if err != nil {
		t.Fatalf("split %q: %v", first.Addr(), err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad port %q: %v", portStr, err)
	}

	if _, err := New(port); err == nil {
		t.Fatalf("expected bind failure on port %d already in use", port)
	}
}

func TestCountersAndGauges(t *testing.T) {
	s, err := New(0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer s.Shutdown(context.Background())

	s.TargetMet.Inc()
	s.TargetMet.Inc()
	s.ActiveCalls.Set(3)
	s.CPUUsage.Set(12.5)

	if got := testutil.ToFloat64(s.TargetMet); got != 2 {
		t.Errorf("target met = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.ActiveCalls); got != 3 {
		t.Errorf("active calls = %v, want 3", got)
	}
	if got := testutil.ToFloat64(s.CPUUsage); got != 12.5 {
		t.Errorf("cpu gauge = %v, want 12.5", got)
	}
}

func TestShutdownStopsServer(t *testing.T) {
	s, err := New(0)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	addr := s.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	client := http.Client{Timeout: 500 * time.Millisecond}
	if _, err := client.Get("http://" + addr + "/metrics"); err == nil {
		t.Errorf("expected scrape to fail after shutdown")
	}
}
