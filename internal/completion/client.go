package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nesall/ragd/internal/errors"
)

// Client is a thin remote completion client. It sends the last message of
// the conversation overwritten with the grounded, templated prompt.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults(), http: &http.Client{}}
}

// WithConfig returns a shallow copy of c using cfg instead of c's own
// configuration, sharing the underlying *http.Client. Used to honor
// per-request overrides (temperature, max tokens) without reconnecting.
func (c *Client) WithConfig(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults(), http: c.http}
}

// Config returns c's current configuration, for callers that need to
// derive an overridden client via WithConfig.
func (c *Client) Config() Config {
	return c.cfg
}

// Complete sends messages (whose last entry is overwritten with prompt)
// and returns the full response text. Used when stream=false.
func (c *Client) Complete(ctx context.Context, messages []Message, prompt string) (string, error) {
	body, err := c.buildBody(messages, prompt, false)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.do(ctx, body)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var parsed nonStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.CompletionError(errors.ErrCodeCompletionParse, "failed to parse completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.CompletionError(errors.ErrCodeCompletionParse, "completion response had no choices", nil)
	}
	return parsed.Choices[0].Message.Content, nil
}

// CompleteStream sends messages in streaming mode, invoking onDelta for
// each incremental piece of content, and returns the full accumulated
// response once the stream terminates on `data: [DONE]`.
func (c *Client) CompleteStream(ctx context.Context, messages []Message, prompt string, onDelta StreamCallback) (string, error) {
	body, err := c.buildBody(messages, prompt, true)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.do(ctx, body)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var accumulated strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			delta = chunk.Choices[0].Delta.ReasoningContent
		}
		if delta == "" {
			continue
		}

		accumulated.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	if err := scanner.Err(); err != nil {
		return accumulated.String(), errors.CompletionError(errors.ErrCodeCompletionParse, "error reading completion stream", err)
	}

	return accumulated.String(), nil
}

func (c *Client) buildBody(messages []Message, prompt string, stream bool) ([]byte, error) {
	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	if len(msgs) == 0 {
		msgs = []Message{{Role: "user", Content: prompt}}
	} else {
		msgs[len(msgs)-1].Content = prompt
	}

	req := chatRequest{
		Model:    c.cfg.Model,
		Messages: msgs,
		Stream:   stream,
	}
	if c.cfg.TemperatureSet {
		t := c.cfg.Temperature
		req.Temperature = &t
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.CompletionError(errors.ErrCodeCompletionProtocol, "failed to marshal completion request", err)
	}

	// Splice in the configurable max-tokens field name.
	var generic map[string]any
	if err := json.Unmarshal(payload, &generic); err != nil {
		return nil, errors.CompletionError(errors.ErrCodeCompletionProtocol, "failed to prepare completion request", err)
	}
	if c.cfg.MaxTokens > 0 {
		generic[c.cfg.MaxTokensName] = c.cfg.MaxTokens
	}

	return json.Marshal(generic)
}

func (c *Client) do(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.CompletionError(errors.ErrCodeCompletionTransport, "failed to build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.CompletionError(errors.ErrCodeCompletionTransport, "completion request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, errors.CompletionError(errors.ErrCodeCompletionProtocol,
			fmt.Sprintf("completion endpoint returned status %d", resp.StatusCode), nil)
	}

	return resp, nil
}
