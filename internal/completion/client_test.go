package completion

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_ParsesNonStreamResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "the answer"}}]}`))
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL, Model: "test-model"})
	out, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "placeholder"}}, "real prompt")
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)
}

func TestComplete_OverwritesLastMessageWithPrompt(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL})
	_, err := c.Complete(context.Background(),
		[]Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "stale"}}, "fresh prompt")
	require.NoError(t, err)
	assert.Contains(t, gotBody, "fresh prompt")
	assert.NotContains(t, gotBody, "stale")
}

func TestComplete_OmitsTemperatureWhenNotSet(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL})
	_, err := c.Complete(context.Background(), nil, "q")
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "temperature")
}

func TestComplete_Non200IsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL})
	_, err := c.Complete(context.Background(), nil, "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_502")
}

func writeSSE(w http.ResponseWriter, events []string) {
	flusher := w.(http.Flusher)
	bw := bufio.NewWriter(w)
	for _, e := range events {
		_, _ = bw.WriteString(fmt.Sprintf("data: %s\n\n", e))
		_ = bw.Flush()
		flusher.Flush()
	}
}

func TestCompleteStream_AccumulatesDeltasAndStopsOnDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, []string{
			`{"choices": [{"delta": {"content": "Hello"}}]}`,
			`{"choices": [{"delta": {"content": ", world"}}]}`,
			`[DONE]`,
			`{"choices": [{"delta": {"content": "should not appear"}}]}`,
		})
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL})
	var deltas []string
	out, err := c.CompleteStream(context.Background(), nil, "q", func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", out)
	assert.Equal(t, []string{"Hello", ", world"}, deltas)
}

func TestCompleteStream_FallsBackToReasoningContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, []string{
			`{"choices": [{"delta": {"reasoning_content": "thinking..."}}]}`,
			`[DONE]`,
		})
	}))
	defer server.Close()

	c := New(Config{Endpoint: server.URL})
	out, err := c.CompleteStream(context.Background(), nil, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "thinking...", out)
}
