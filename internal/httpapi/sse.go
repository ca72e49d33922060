package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nesall/ragd/internal/completion"
	"github.com/nesall/ragd/internal/retrieval"
)

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	Messages    []completion.Message   `json:"messages"`
	SourceIDs   []string               `json:"sourceids"`
	Attachments []retrieval.Attachment `json:"attachments"`
	Temperature *float64               `json:"temperature"`
	MaxTokens   *int                   `json:"max_tokens"`
	TargetAPI   string                 `json:"targetapi"`
}

type contextSourcesEvent struct {
	Type    string   `json:"type"`
	Sources []string `json:"sources"`
}

type sseErrorEvent struct {
	Error string `json:"error"`
}

// handleChat answers POST /api/chat: plan retrieval context for the last
// user message, assemble the grounded prompt, and stream the completion
// as Server-Sent Events. The stream always ends with `data: [DONE]`, even
// when an error occurs after headers are already sent.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	question := req.Messages[len(req.Messages)-1].Content

	attachments := make([]retrieval.Attachment, len(req.Attachments))
	copy(attachments, req.Attachments)

	results, err := s.planner.Plan(r.Context(), retrieval.Request{
		Message:     question,
		Attachments: attachments,
		SourceIDs:   req.SourceIDs,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cfg := s.promptCfg
	prompt := completion.BuildPrompt(cfg, results, question, s.tok)

	client := s.completion
	if req.TargetAPI != "" {
		client = s.completionFor(req.TargetAPI, cfg)
	}

	if req.Temperature != nil || req.MaxTokens != nil {
		overridden := client.Config()
		if req.Temperature != nil {
			overridden.Temperature = *req.Temperature
			overridden.TemperatureSet = true
		}
		if req.MaxTokens != nil {
			overridden.MaxTokens = *req.MaxTokens
		}
		client = client.WithConfig(overridden)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	writeFailed := false
	onDelta := func(delta string) {
		if writeFailed {
			return
		}
		if !writeSSEJSON(w, map[string]string{"content": delta}) {
			writeFailed = true
			return
		}
		flusher.Flush()
	}

	_, err = client.CompleteStream(r.Context(), req.Messages, prompt, onDelta)
	if writeFailed {
		return // client disconnected mid-stream; nothing more to write
	}
	if err != nil {
		writeSSEJSON(w, sseErrorEvent{Error: err.Error()})
		flusher.Flush()
		writeSSERaw(w, "[DONE]")
		flusher.Flush()
		return
	}

	sourceIDs := make([]string, 0, len(results))
	seen := make(map[string]bool)
	for _, res := range results {
		if seen[res.SourceID] {
			continue
		}
		seen[res.SourceID] = true
		sourceIDs = append(sourceIDs, res.SourceID)
	}
	writeSSEJSON(w, contextSourcesEvent{Type: "context_sources", Sources: sourceIDs})
	flusher.Flush()

	writeSSERaw(w, "[DONE]")
	flusher.Flush()
}

// completionFor resolves targetapi to an alternate completion client, as
// named by generation.apis[].id in the loaded configuration. Falls back to
// the default client when targetapi is unknown.
func (s *Server) completionFor(targetAPI string, _ completion.Config) *completion.Client {
	if client, ok := s.apis[targetAPI]; ok {
		return client
	}
	return s.completion
}

func writeSSEJSON(w http.ResponseWriter, payload any) bool {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return writeSSERaw(w, string(encoded))
}

func writeSSERaw(w http.ResponseWriter, data string) bool {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err == nil
}
