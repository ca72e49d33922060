package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nesall/ragd/internal/errors"
)

// Client is a thin remote embedding client. It applies the configured
// query/document format template, POSTs a batch, and parses either
// response shape the endpoint may return. Callers are responsible for
// retrying; the client never retries internally.
type Client struct {
	cfg       Config
	http      *http.Client
	transport *http.Transport

	mu     sync.RWMutex
	closed bool
}

// New creates a Client. No network call is made at construction time.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &Client{
		cfg:       cfg,
		transport: transport,
		// No client-level Timeout: each call scopes its own context deadline
		// so callers can vary timeout per request without fighting a global one.
		http: &http.Client{Transport: transport},
	}
}

// Dimensions returns the configured vector dimension, 0 if unset.
func (c *Client) Dimensions() int {
	return c.cfg.VectorDim
}

// Encode applies kind's format template to every text and returns one
// vector per input, in order.
func (c *Client) Encode(ctx context.Context, texts []string, kind Kind) ([][]float32, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, errors.InternalError("embed client is closed", nil)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	formatted := make([]string, len(texts))
	tmpl := c.cfg.DocumentFormat
	if kind == Query {
		tmpl = c.cfg.QueryFormat
	}
	for i, t := range texts {
		formatted[i] = applyFormat(tmpl, t)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(requestBody{Content: formatted})
	if err != nil {
		return nil, errors.EmbedError(errors.ErrCodeEmbedProtocol, "failed to marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.EmbedError(errors.ErrCodeEmbedTransport, "failed to build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.EmbedError(errors.ErrCodeEmbedTransport, "embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.EmbedError(errors.ErrCodeEmbedTransport, "failed to read embed response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.EmbedError(errors.ErrCodeEmbedProtocol,
			fmt.Sprintf("embedding endpoint returned status %d", resp.StatusCode), nil).
			WithDetail("body", string(respBody))
	}

	vectors, err := parseEmbedResponse(respBody)
	if err != nil {
		return nil, errors.EmbedError(errors.ErrCodeEmbedProtocol, "failed to parse embed response", err)
	}

	if len(vectors) != len(texts) {
		return nil, errors.EmbedError(errors.ErrCodeEmbedProtocol,
			fmt.Sprintf("embedding endpoint returned %d vectors for %d inputs", len(vectors), len(texts)), nil)
	}

	if c.cfg.VectorDim > 0 {
		for i, v := range vectors {
			if len(v) != c.cfg.VectorDim {
				return nil, errors.EmbedError(errors.ErrCodeEmbedProtocol,
					fmt.Sprintf("vector %d has dimension %d, expected %d", i, len(v), c.cfg.VectorDim), nil)
			}
		}
	}

	return vectors, nil
}

// AssertNormalized is a self-test hook: it reports whether v's L2 norm is
// within tol of 1.0. Not called on the request hot path.
func AssertNormalized(v []float32, tol float64) bool {
	n := l2Norm(v)
	return n > 1-tol && n < 1+tol
}

// Close releases pooled connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	return nil
}

// applyFormat substitutes the sole "{}" placeholder in tmpl with text.
func applyFormat(tmpl, text string) string {
	return strings.Replace(tmpl, "{}", text, 1)
}

// parseEmbedResponse accepts either a top-level JSON array of vectors or
// an object of the form {"data": [{"embedding": [...]}, ...]}.
func parseEmbedResponse(body []byte) ([][]float32, error) {
	var asArray [][]float64
	if err := json.Unmarshal(body, &asArray); err == nil {
		return toFloat32Matrix(asArray), nil
	}

	var asObject dataResponse
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, err
	}

	out := make([][]float32, len(asObject.Data))
	for i, entry := range asObject.Data {
		out[i] = toFloat32Vector(entry.Embedding)
	}
	return out, nil
}

func toFloat32Vector(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func toFloat32Matrix(m [][]float64) [][]float32 {
	out := make([][]float32, len(m))
	for i, v := range m {
		out[i] = toFloat32Vector(v)
	}
	return out
}
