package metrics

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink owns every instrument the agent reports into, registered on its own
// registry and exposed for scrape on a dedicated port. One Sink per process;
// it is constructed explicitly and passed to whoever needs to observe.
type Sink struct {
	reg *prometheus.Registry
	ln  net.Listener
	srv *http.Server

	// Latency histograms (milliseconds)
	EndToEndLatency prometheus.Histogram
	STTLatency      prometheus.Histogram
	LLMLatency      prometheus.Histogram
	TTSLatency      prometheus.Histogram

	// Coarse parallel view of end-to-end latency
	ResponseTimeAvg prometheus.Summary
	ResponseTime95P prometheus.Summary

	// Call counters
	TotalCalls      prometheus.Counter
	FailedCallSetup prometheus.Counter
	TargetMet       prometheus.Counter
	TargetMissed    prometheus.Counter

	ActiveCalls prometheus.Gauge

	// Audio quality
	MOSScore   prometheus.Histogram
	JitterMS   prometheus.Histogram
	PacketLoss prometheus.Histogram

	// System resources
	CPUUsage    prometheus.Gauge
	MemoryUsage prometheus.Gauge
}

// New builds the instrument set and binds the exposition listener. A bind
// failure is returned to the caller; per the error policy the process should
// not keep serving metrics it cannot expose. Port 0 picks an ephemeral port.
func New(port int) (*Sink, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics listen on :%d: %w", port, err)
	}

	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	s := &Sink{
		reg: reg,
		ln:  ln,

		EndToEndLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_end_to_end_latency_ms",
			Help:    "End-to-end latency from speech to audio delivery",
			Buckets: []float64{50, 100, 200, 300, 400, 500, 600, 800, 1000, 1500, 2000},
		}),
		STTLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_stt_latency_ms",
			Help:    "Speech-to-text processing latency",
			Buckets: []float64{10, 20, 50, 100, 200, 500, 1000},
		}),
		LLMLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_llm_latency_ms",
			Help:    "LLM processing latency",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000},
		}),
		TTSLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_tts_latency_ms",
			Help:    "Text-to-speech processing latency",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000},
		}),

		ResponseTimeAvg: f.NewSummary(prometheus.SummaryOpts{
			Name: "voice_agent_response_time_avg_ms",
			Help: "Average response time",
		}),
		ResponseTime95P: f.NewSummary(prometheus.SummaryOpts{
			Name: "voice_agent_response_time_95p_ms",
			Help: "95th percentile response time",
		}),

		TotalCalls: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_total_calls",
			Help: "Total number of calls processed",
		}),
		FailedCallSetup: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_failed_call_setup",
			Help: "Number of failed call setups",
		}),
		TargetMet: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_latency_target_met",
			Help: "Number of calls meeting <600ms latency target",
		}),
		TargetMissed: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_agent_latency_target_missed",
			Help: "Number of calls missing <600ms latency target",
		}),

		ActiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_agent_active_calls",
			Help: "Number of currently active calls",
		}),

		MOSScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_mos_score",
			Help:    "Mean Opinion Score for audio quality",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),
		JitterMS: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_jitter_ms",
			Help:    "Audio jitter in milliseconds",
			Buckets: []float64{0, 5, 10, 20, 50, 100, 200},
		}),
		PacketLoss: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_agent_packet_loss_rate",
			Help:    "Packet loss rate as percentage",
			Buckets: []float64{0, 0.1, 0.5, 1, 2, 5, 10},
		}),

		CPUUsage: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_agent_cpu_usage_percent",
			Help: "CPU usage percentage",
		}),
		MemoryUsage: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_agent_memory_usage_mb",
			Help: "Memory usage in MB",
		}),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] serve: %v", err)
		}
	}()
	log.Printf("[metrics] exposition on %s", ln.Addr())
	return s, nil
}

// Addr reports the bound exposition address.
func (s *Sink) Addr() string { return s.ln.Addr().String() }

// Shutdown stops the exposition server.
func (s *Sink) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
