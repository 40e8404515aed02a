package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"vox/agent/internal/config"
)

// Event is one transcription result from the provider.
type Event struct {
	Type string // "interim" | "final" | "error"
	Text string
}

// Stream keeps one live websocket to the transcription provider for a call,
// sending PCM16@16k audio frames and emitting transcript events. It
// reconnects with backoff and opens a circuit after repeated failures.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiKey string
	url    string

	// Outbound audio queue; caller drops frames upstream on pressure.
	sendQ  chan []byte
	Events chan Event

	fails   []time.Time
	circuit time.Time

	lastInterim string
}

func NewStream(parent context.Context, cfg config.Config) *Stream {
	ctx, cancel := context.WithCancel(parent)

	q := url.Values{}
	q.Set("model", cfg.Deepgram.Model)
	q.Set("language", cfg.Deepgram.Language)
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("channels", "1")

	base := cfg.Deepgram.WSURL
	if base == "" {
		base = "wss://api.deepgram.com/v1/listen"
	}

	return &Stream{
		ctx:    ctx,
		cancel: cancel,
		apiKey: cfg.Deepgram.APIKey,
		url:    base + "?" + q.Encode(),
		sendQ:  make(chan []byte, 8),
		Events: make(chan Event, 32),
	}
}

func (s *Stream) Start() { go s.run() }

func (s *Stream) Close() { s.cancel() }

// Results exposes the event channel behind an interface-friendly method.
func (s *Stream) Results() <-chan Event { return s.Events }

// Send enqueues an audio frame; returns false when the queue is full and the
// frame was dropped.
func (s *Stream) Send(pcm []byte) bool {
	select {
	case s.sendQ <- pcm:
		return true
	default:
		return false
	}
}

func (s *Stream) run() {
	defer close(s.Events)
	for {
		if err := s.connectAndPump(); err != nil {
			s.addFailure()
			s.emit(Event{Type: "error", Text: err.Error()})
		} else {
			s.fails = nil
		}
		if s.ctx.Err() != nil {
			return
		}
		time.Sleep(s.nextBackoff())
	}
}

func (s *Stream) connectAndPump() error {
	if time.Now().Before(s.circuit) {
		time.Sleep(500 * time.Millisecond)
		return fmt.Errorf("circuit open")
	}

	hdr := make(http.Header)
	if s.apiKey != "" {
		hdr.Set("Authorization", "Token "+s.apiKey)
	}
	dialCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		log.Printf("[stt] connect: %v", err)
		return err
	}
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	// The sender must not outlive this connection: a stale pump would
	// swallow frames into the dead socket on the next dial.
	stop := make(chan struct{})
	sendDone := make(chan struct{})
	go func() {
		defer close(sendDone)
		s.pumpSend(ws, stop)
	}()
	defer func() {
		close(stop)
		<-sendDone
	}()

	for {
		if s.ctx.Err() != nil {
			return nil
		}
		_, data, err := ws.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleFrame(data)
	}
}

// frameWriter is the write surface pumpSend needs from a connection.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// pumpSend drains the audio queue into one connection until stop closes,
// the stream context ends, or a write fails.
func (s *Stream) pumpSend(w frameWriter, stop <-chan struct{}) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-stop:
			return
		case b := <-s.sendQ:
			if b == nil {
				continue
			}
			wctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := w.Write(wctx, websocket.MessageBinary, b)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// handleFrame parses one provider JSON frame leniently and emits the
// matching event, if any.
func (s *Stream) handleFrame(data []byte) {
	if len(data) == 0 {
		return
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return
	}

	typ := asString(m["type"])
	switch {
	case strings.EqualFold(typ, "Error") || m["error"] != nil:
		msg := asString(m["error"])
		if msg == "" {
			msg = "provider_error"
		}
		s.emit(Event{Type: "error", Text: msg})

	case strings.EqualFold(typ, "Results") || m["channel"] != nil:
		text := transcriptFrom(m)
		if text == "" {
			return
		}
		if asBool(m["is_final"]) || asBool(m["speech_final"]) {
			s.emit(Event{Type: "final", Text: text})
			s.lastInterim = ""
		} else {
			s.lastInterim = text
			s.emit(Event{Type: "interim", Text: text})
		}

	case strings.EqualFold(typ, "UtteranceEnd"):
		// Fall back to the last interim if the provider never sent a final.
		if s.lastInterim != "" {
			s.emit(Event{Type: "final", Text: s.lastInterim})
			s.lastInterim = ""
		}
	}
}

func transcriptFrom(m map[string]any) string {
	ch, _ := m["channel"].(map[string]any)
	if ch == nil {
		return ""
	}
	alts, _ := ch["alternatives"].([]any)
	if len(alts) == 0 {
		return ""
	}
	a0, _ := alts[0].(map[string]any)
	if a0 == nil {
		return ""
	}
	return strings.TrimSpace(asString(a0["transcript"]))
}

func (s *Stream) emit(e Event) {
	select {
	case s.Events <- e:
	default:
		// drop if slow consumer
	}
}

func (s *Stream) addFailure() {
	now := time.Now()
	cutoff := now.Add(-60 * time.Second)
	j := 0
	for _, t := range s.fails {
		if t.After(cutoff) {
			s.fails[j] = t
			j++
		}
	}
	s.fails = append(s.fails[:j], now)
	if len(s.fails) >= 3 {
		s.circuit = now.Add(30 * time.Second)
		log.Printf("[stt] circuit open for 30s after %d failures", len(s.fails))
	}
}

func (s *Stream) nextBackoff() time.Duration {
	n := len(s.fails)
	if n <= 0 {
		return time.Second
	}
	if n > 5 {
		n = 5
	}
	d := time.Duration(1<<uint(n-1)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
