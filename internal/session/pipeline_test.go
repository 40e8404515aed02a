package session

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"vox/agent/internal/kb"
	"vox/agent/internal/latency"
	"vox/agent/internal/llm"
	"vox/agent/internal/metrics"
)

type fakeResponder struct {
	called bool
	text   string
	ttft   float64
	err    error
}

func (f *fakeResponder) Reply(ctx context.Context, userText, kbContext string) (*llm.Result, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Text: f.text, TimeToFirstTokenMS: f.ttft}, nil
}

type fakeSynth struct {
	gotText string
	err     error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.gotText = text
	if f.err != nil {
		return nil, f.err
	}
	return []byte{0x01, 0x02}, nil
}

func newTestTracker(t *testing.T) *latency.Tracker {
	t.Helper()
	sink, err := metrics.New(0)
	if err != nil {
		t.Fatalf("test sink: %v", err)
	}
	t.Cleanup(func() { sink.Shutdown(context.Background()) })
	return latency.NewTracker(sink)
}

func TestRespondScriptedSkipsLLM(t *testing.T) {
	tr := newTestTracker(t)
	r, _ := tr.StartCall("c1")
	lm := &fakeResponder{text: "model answer"}
	ts := &fakeSynth{}
	p := NewPipeline(tr, kb.New(), lm, ts)

	audio, text, err := p.Respond(context.Background(), "c1", "can I get a refund please")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if lm.called {
		t.Errorf("LLM should be skipped for scripted topics")
	}
	if text != "Our refund policy is 30 days no questions asked." {
		t.Errorf("text = %q", text)
	}
	if len(audio) == 0 {
		t.Errorf("no audio returned")
	}
	if ts.gotText != text {
		t.Errorf("synthesizer got %q, want %q", ts.gotText, text)
	}

	// Stage boundaries were marked even on the scripted path
	if r.LLMStart.IsZero() || r.LLMEnd.IsZero() || r.TTSStart.IsZero() || r.TTSEnd.IsZero() {
		t.Errorf("stage marks missing: %+v", r)
	}
}

func TestRespondFallsBackToLLM(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartCall("c1")
	lm := &fakeResponder{text: "the weather is sunny"}
	p := NewPipeline(tr, kb.New(), lm, &fakeSynth{})

	_, text, err := p.Respond(context.Background(), "c1", "what is the weather")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !lm.called {
		t.Fatalf("LLM not consulted for unscripted topic")
	}
	if text != "the weather is sunny" {
		t.Fatalf("text = %q", text)
	}
}

func TestRespondLLMError(t *testing.T) {
	tr := newTestTracker(t)
	r, _ := tr.StartCall("c1")
	p := NewPipeline(tr, kb.New(), &fakeResponder{err: errors.New("boom")}, &fakeSynth{})

	if _, _, err := p.Respond(context.Background(), "c1", "unscripted"); err == nil {
		t.Fatalf("expected error")
	}
	// LLM end is still marked so the record stays internally consistent
	if r.LLMEnd.IsZero() {
		t.Errorf("LLM end not marked on error path")
	}
	if !r.TTSStart.IsZero() {
		t.Errorf("TTS should not start after LLM failure")
	}
}

func TestRespondLogsTimeToFirstToken(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartCall("c1")
	p := NewPipeline(tr, kb.New(), &fakeResponder{text: "x", ttft: 123.4}, &fakeSynth{})

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	if _, _, err := p.Respond(context.Background(), "c1", "unscripted"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(buf.String(), "ttft=123.4ms") {
		t.Fatalf("time to first token not logged:\n%s", buf.String())
	}
}

func TestRespondTTSError(t *testing.T) {
	tr := newTestTracker(t)
	tr.StartCall("c1")
	p := NewPipeline(tr, kb.New(), &fakeResponder{text: "x"}, &fakeSynth{err: errors.New("no voice")})

	_, text, err := p.Respond(context.Background(), "c1", "unscripted")
	if err == nil {
		t.Fatalf("expected error")
	}
	if text != "x" {
		t.Fatalf("text should survive TTS failure, got %q", text)
	}
}
