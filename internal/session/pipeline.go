package session

import (
	"context"
	"fmt"
	"log"

	"vox/agent/internal/kb"
	"vox/agent/internal/latency"
	"vox/agent/internal/llm"
)

// Responder produces a reply for a user transcript.
type Responder interface {
	Reply(ctx context.Context, userText, kbContext string) (*llm.Result, error)
}

// Synthesizer turns reply text into PCM16 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Pipeline runs the response half of a turn: transcript in, reply audio out,
// marking the LLM and TTS stage boundaries on the tracker as it goes.
type Pipeline struct {
	tracker *latency.Tracker
	kb      *kb.Store
	llm     Responder
	tts     Synthesizer
}

func NewPipeline(tracker *latency.Tracker, store *kb.Store, r Responder, s Synthesizer) *Pipeline {
	return &Pipeline{tracker: tracker, kb: store, llm: r, tts: s}
}

// Respond answers a final transcript. Scripted knowledge-base hits
// short-circuit the LLM entirely; everything else goes through the model.
func (p *Pipeline) Respond(ctx context.Context, callID, transcript string) ([]byte, string, error) {
	p.tracker.MarkLLMStart(callID)

	var text string
	if res, ok := p.kb.Search(transcript); ok {
		log.Printf("[session] call %s scripted reply topic=%s", callID, res.Meta["topic"])
		text = res.Text
	} else {
		res, err := p.llm.Reply(ctx, transcript, "")
		if err != nil {
			p.tracker.MarkLLMEnd(callID)
			return nil, "", fmt.Errorf("llm reply: %w", err)
		}
		log.Printf("[session] call %s llm ttft=%.1fms", callID, res.TimeToFirstTokenMS)
		text = res.Text
	}
	p.tracker.MarkLLMEnd(callID)

	p.tracker.MarkTTSStart(callID)
	audio, err := p.tts.Synthesize(ctx, text)
	p.tracker.MarkTTSEnd(callID)
	if err != nil {
		return nil, text, fmt.Errorf("tts synthesize: %w", err)
	}
	return audio, text, nil
}
