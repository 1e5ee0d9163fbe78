package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Message is one chat-format message for the generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationError marks a provider failure or timeout. Callers surface
// it to the user, unlike the degradations around memory or
// classification.
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed (%s)", e.Reason)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Client speaks to an OpenAI-compatible chat completion endpoint with
// SSE streaming. It is the engine's only boundary crossing.
type Client struct {
	url     string
	model   string
	timeout time.Duration
	http    *http.Client
}

func NewClient(url, model string, timeout time.Duration) *Client {
	return &Client{
		url:     url,
		model:   model,
		timeout: timeout,
		// per-request deadlines come from the context; the stream
		// itself must be allowed to outlive any fixed client timeout
		http: &http.Client{Timeout: 0},
	}
}

// Generate starts a streaming completion. The returned stream's chunks
// are raw model output; reasoning deltas arrive wrapped in
// <think>...</think> exactly as the model produced them.
func (c *Client) Generate(ctx context.Context, messages []Message) (*Stream, error) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	payload := map[string]interface{}{
		"model":    c.model,
		"messages": messages,
		"stream":   true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		cancel()
		return nil, &GenerationError{Reason: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, strings.NewReader(string(body)))
	if err != nil {
		cancel()
		return nil, &GenerationError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, &GenerationError{Reason: "provider unreachable", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &GenerationError{Reason: fmt.Sprintf("provider status %d", resp.StatusCode)}
	}

	chunks := make(chan string)
	stream := &Stream{Chunks: chunks, done: make(chan struct{})}
	go func() {
		defer cancel()
		defer close(stream.done)
		defer close(chunks)
		defer resp.Body.Close()
		stream.err = c.readSSE(ctx, resp, chunks)
	}()
	return stream, nil
}

func (c *Client) readSSE(ctx context.Context, resp *http.Response, chunks chan<- string) error {
	reader := bufio.NewReader(resp.Body)
	inReasoning := false

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return &GenerationError{Reason: "timeout or cancellation", Err: ctx.Err()}
			}
			// provider closed the stream without [DONE]; treat what we
			// have as complete
			return nil
		}
		line = strings.TrimSpace(line)
		if len(line) < 7 || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := line[6:]
		if data == "[DONE]" {
			return nil
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content          string `json:"content"`
					ReasoningContent string `json:"reasoning_content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			log.Printf("[LLM] stream decode error: %v", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.ReasoningContent != "" {
			token := delta.ReasoningContent
			if !inReasoning {
				inReasoning = true
				token = "<think>" + token
			}
			if err := send(ctx, chunks, token); err != nil {
				return err
			}
		}
		if delta.Content != "" {
			token := delta.Content
			if inReasoning {
				inReasoning = false
				token = "</think>" + token
			}
			if err := send(ctx, chunks, token); err != nil {
				return err
			}
		}
	}
}

func send(ctx context.Context, chunks chan<- string, token string) error {
	select {
	case chunks <- token:
		return nil
	case <-ctx.Done():
		return &GenerationError{Reason: "timeout or cancellation", Err: ctx.Err()}
	}
}
