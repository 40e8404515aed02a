package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vox/agent/internal/api"
	"vox/agent/internal/config"
	"vox/agent/internal/kb"
	"vox/agent/internal/latency"
	"vox/agent/internal/llm"
	"vox/agent/internal/metrics"
	"vox/agent/internal/session"
	"vox/agent/internal/stt"
	"vox/agent/internal/sysmon"
	"vox/agent/internal/tts"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	sink, err := metrics.New(cfg.Metrics.Port)
	if err != nil {
		log.Fatalf("metrics listener: %v", err)
	}
	log.Printf("metrics exposed on %s", sink.Addr())

	var opts []latency.Option
	if cfg.Latency.Strict {
		opts = append(opts, latency.WithStrict())
	}
	tracker := latency.NewTracker(sink, opts...)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	sampler, err := sysmon.New(sink, time.Duration(cfg.Monitor.IntervalSeconds)*time.Second)
	if err != nil {
		log.Printf("[sysmon] disabled: %v", err)
	} else {
		go sampler.Run(rootCtx)
	}

	pipeline := session.NewPipeline(tracker, kb.New(), llm.NewClient(cfg), tts.NewClient(cfg))
	callServer := session.NewServer(tracker, pipeline, func(ctx context.Context) session.Transcriber {
		return stt.NewStream(ctx, cfg)
	})

	h := api.NewHandlers(tracker)
	mux := api.NewRouter(h, callServer.HandleCallWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = sink.Shutdown(ctx)
	}()

	log.Printf("agent starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
