package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vox/agent/internal/config"
)

// Client synthesizes speech through the ElevenLabs REST API and returns raw
// PCM16 audio ready for delivery.
type Client struct {
	httpc   *http.Client
	apiKey  string
	voiceID string

	// BaseURL is overridable for tests.
	BaseURL string
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		httpc:   &http.Client{Timeout: 60 * time.Second},
		apiKey:  cfg.Eleven.APIKey,
		voiceID: cfg.Eleven.VoiceID,
		BaseURL: "https://api.elevenlabs.io",
	}
}

// Synthesize requests WAV audio for text and decodes it to PCM16 samples.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" || c.voiceID == "" {
		return nil, fmt.Errorf("tts: api key or voice id not configured")
	}

	body, _ := json.Marshal(map[string]any{"text": text})
	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.BaseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("accept", "audio/wav")
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tts: status %d: %s", resp.StatusCode, b)
	}

	pcm, _, err := decodeWAV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: decode: %w", err)
	}
	return pcm, nil
}

// decodeWAV extracts PCM16 samples from a RIFF/WAVE stream. Stereo input is
// downmixed to mono by averaging channels. Returns samples and sample rate.
func decodeWAV(r io.Reader) ([]byte, int, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if len(b) < 44 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a WAV")
	}

	var (
		channels int
		rate     int
		data     []byte
	)
	off := 12
	for off+8 <= len(b) {
		cid := string(b[off : off+4])
		csz := int(u32(b[off+4 : off+8]))
		off += 8
		if off+csz > len(b) {
			return nil, 0, fmt.Errorf("truncated chunk %q", cid)
		}
		switch cid {
		case "fmt ":
			if csz < 16 {
				return nil, 0, fmt.Errorf("short fmt chunk")
			}
			if tag := u16(b[off : off+2]); tag != 1 {
				return nil, 0, fmt.Errorf("unsupported format tag %d", tag)
			}
			channels = int(u16(b[off+2 : off+4]))
			rate = int(u32(b[off+4 : off+8]))
			if bits := u16(b[off+14 : off+16]); bits != 16 {
				return nil, 0, fmt.Errorf("unsupported bit depth %d", bits)
			}
		case "data":
			data = b[off : off+csz]
		}
		off += csz
		// chunks are word-aligned
		if csz%2 == 1 {
			off++
		}
		if data != nil && channels != 0 {
			break
		}
	}
	if channels == 0 || data == nil {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}

	if channels == 1 {
		return data, rate, nil
	}

	// Average interleaved channels down to mono.
	frame := channels * 2
	n := len(data) / frame
	mono := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(int16(u16(data[i*frame+ch*2 : i*frame+ch*2+2])))
		}
		v := int16(sum / channels)
		mono[i*2] = byte(v)
		mono[i*2+1] = byte(v >> 8)
	}
	return mono, rate, nil
}

func u16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func u32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
