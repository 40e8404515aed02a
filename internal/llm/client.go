package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vox/agent/internal/config"
)

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	httpc        *http.Client
	endpoint     string
	apiKey       string
	model        string
	systemPrompt string
	maxTokens    int
}

// Result is one completed reply.
type Result struct {
	Text               string
	TimeToFirstTokenMS float64
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		httpc:        &http.Client{Timeout: 120 * time.Second},
		endpoint:     strings.TrimRight(cfg.LLM.Endpoint, "/"),
		apiKey:       cfg.LLM.APIKey,
		model:        cfg.LLM.Model,
		systemPrompt: cfg.LLM.SystemPrompt,
		maxTokens:    cfg.LLM.MaxTokens,
	}
}

// Reply sends the user text (with optional knowledge-base context) and
// consumes the SSE stream until done.
func (c *Client) Reply(ctx context.Context, userText, kbContext string) (*Result, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("llm: endpoint not configured")
	}

	sys := c.systemPrompt
	if kbContext != "" {
		sys += "\nRelevant context from the knowledge base:\n" + kbContext
	}
	body, err := json.Marshal(map[string]any{
		"model":      c.model,
		"stream":     true,
		"max_tokens": c.maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": sys},
			{"role": "user", "content": userText},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("llm: status %d: %s", resp.StatusCode, b)
	}

	text, firstToken := consumeStream(resp.Body)
	res := &Result{Text: text}
	if !firstToken.IsZero() {
		res.TimeToFirstTokenMS = float64(firstToken.Sub(start)) / float64(time.Millisecond)
	}
	return res, nil
}

// consumeStream reads SSE "data:" lines, concatenating delta content until
// the [DONE] marker or EOF. Returns the text and the first-token time.
func consumeStream(body io.Reader) (string, time.Time) {
	var sb strings.Builder
	var first time.Time

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		if first.IsZero() {
			first = time.Now()
		}
		sb.WriteString(chunk.Choices[0].Delta.Content)
	}
	return sb.String(), first
}
