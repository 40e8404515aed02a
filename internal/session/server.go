package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"

	"vox/agent/internal/latency"
	"vox/agent/internal/stt"
)

// Transcriber is the streaming STT surface the server needs; *stt.Stream
// satisfies it.
type Transcriber interface {
	Start()
	Close()
	Send(pcm []byte) bool
	Results() <-chan stt.Event
}

// Server terminates one voice call per websocket connection.
//
// Wire protocol: binary frames carry a 4-byte big-endian sequence number
// followed by PCM16@16k audio; the sequence feeds the quality estimator.
// Text frames are JSON control messages ({"type":"end_call"} ends the call
// cleanly). Reply audio goes back as binary frames.
type Server struct {
	tracker  *latency.Tracker
	pipeline *Pipeline

	// NewTranscriber builds the provider stream per call; swapped out in
	// tests.
	NewTranscriber func(ctx context.Context) Transcriber
}

type controlMsg struct {
	Type string `json:"type"`
}

func NewServer(tracker *latency.Tracker, p *Pipeline, newTranscriber func(ctx context.Context) Transcriber) *Server {
	return &Server{tracker: tracker, pipeline: p, NewTranscriber: newTranscriber}
}

// HandleCallWS runs one call over the websocket until the client ends it or
// disconnects.
func (s *Server) HandleCallWS(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		callID = uuid.New().String()
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[session] ws accept call %s: %v", callID, err)
		s.tracker.RecordFailedCallSetup()
		return
	}
	defer c.Close(ws.StatusNormalClosure, "done")

	if _, err := s.tracker.StartCall(callID); err != nil {
		log.Printf("[session] start call %s: %v", callID, err)
		s.tracker.RecordFailedCallSetup()
		c.Close(ws.StatusPolicyViolation, "duplicate call id")
		return
	}

	ctx := r.Context()
	est := NewEstimator()
	tr := s.NewTranscriber(ctx)
	tr.Start()
	defer tr.Close()

	// Transcript consumer: each final transcript runs the response pipeline
	// and ships audio back.
	respDone := make(chan struct{})
	go func() {
		defer close(respDone)
		for ev := range tr.Results() {
			switch ev.Type {
			case "final":
				s.tracker.MarkSTTEnd(callID)
				s.respond(ctx, c, callID, ev.Text)
			case "error":
				log.Printf("[session] call %s stt: %s", callID, ev.Text)
			}
		}
	}()

	sawAudio := false
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		switch typ {
		case ws.MessageBinary:
			if len(data) < 4 {
				continue
			}
			if !sawAudio {
				sawAudio = true
				s.tracker.MarkSTTStart(callID)
			}
			seq := binary.BigEndian.Uint32(data[:4])
			est.OnFrame(seq, time.Now())
			if !tr.Send(data[4:]) {
				log.Printf("[session] call %s dropped audio frame on backpressure", callID)
			}
		case ws.MessageText:
			var msg controlMsg
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			if msg.Type == "end_call" {
				s.tracker.EndCall(callID, est.Sample())
				return
			}
		}
	}

	s.tracker.EndCall(callID, est.Sample())
}

func (s *Server) respond(ctx context.Context, c *ws.Conn, callID, transcript string) {
	audio, text, err := s.pipeline.Respond(ctx, callID, transcript)
	if err != nil {
		log.Printf("[session] call %s respond: %v", callID, err)
		return
	}
	log.Printf("[session] call %s reply %q (%d bytes audio)", callID, text, len(audio))

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.Write(wctx, ws.MessageBinary, audio); err != nil {
		log.Printf("[session] call %s write audio: %v", callID, err)
		return
	}
	s.tracker.MarkAudioDelivered(callID)
}
