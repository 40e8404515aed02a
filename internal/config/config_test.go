package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("METRICS_PORT")
	os.Unsetenv("MONITOR_INTERVAL_SECONDS")
	os.Unsetenv("LATENCY_STRICT")

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Metrics.Port != 8000 {
		t.Fatalf("expected default metrics port 8000, got %d", c.Metrics.Port)
	}
	if c.Monitor.IntervalSeconds != 5 {
		t.Fatalf("expected default monitor interval 5, got %d", c.Monitor.IntervalSeconds)
	}
	if c.Latency.Strict {
		t.Fatalf("strict mode should default to off")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	os.Setenv("METRICS_PORT", "9100")
	os.Setenv("LATENCY_STRICT", "true")
	defer os.Unsetenv("METRICS_PORT")
	defer os.Unsetenv("LATENCY_STRICT")

	c := Load()

	if c.Metrics.Port != 9100 {
		t.Fatalf("expected metrics port 9100, got %d", c.Metrics.Port)
	}
	if !c.Latency.Strict {
		t.Fatalf("expected strict mode on")
	}
}
