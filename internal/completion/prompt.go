package completion

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nesall/ragd/internal/retrieval"
)

// TokenCounter estimates the token count of a piece of text. Satisfied by
// *tokenizer.Tokenizer.
type TokenCounter interface {
	Count(text string) int
}

// BuildPrompt renders cfg.PromptTemplate with the assembled context and
// the question substituted for __CONTEXT__ and __QUESTION__.
func BuildPrompt(cfg Config, results []retrieval.SearchResult, question string, tok TokenCounter) string {
	cfg = cfg.withDefaults()
	ctx := buildContext(cfg, results, tok)
	prompt := strings.ReplaceAll(cfg.PromptTemplate, "__CONTEXT__", ctx)
	prompt = strings.ReplaceAll(prompt, "__QUESTION__", question)
	return prompt
}

// buildContext labels each Search Result with its basename (unless already
// labeled) and appends results in order until the running token count
// would exceed cfg.ContextLength. The final partial item is truncated by
// proportional character count, never padded past the limit.
func buildContext(cfg Config, results []retrieval.SearchResult, tok TokenCounter) string {
	var b strings.Builder
	budget := cfg.ContextLength
	used := 0

	for _, r := range results {
		labeled := labelResult(cfg.LabelFormat, r)
		tokCount := tok.Count(labeled)

		if used+tokCount <= budget {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(labeled)
			used += tokCount
			continue
		}

		remaining := budget - used
		if remaining <= 0 {
			break
		}
		truncated := truncateToTokenBudget(labeled, remaining, tok)
		if truncated != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(truncated)
		}
		break
	}

	return b.String()
}

// labelResult prefixes content with its source basename label unless the
// content already starts with a bracketed label.
func labelResult(format string, r retrieval.SearchResult) string {
	if strings.HasPrefix(strings.TrimSpace(r.Content), "[") {
		return r.Content
	}
	label := fmt.Sprintf(format, filepath.Base(r.SourceID))
	return label + " " + r.Content
}

// truncateToTokenBudget shrinks text by proportional character count until
// it fits within budget tokens, per tok. Never pads past the limit.
func truncateToTokenBudget(text string, budget int, tok TokenCounter) string {
	total := tok.Count(text)
	if total <= budget || total == 0 {
		return text
	}

	ratio := float64(budget) / float64(total)
	cut := int(float64(len(text)) * ratio)
	if cut <= 0 {
		return ""
	}
	if cut > len(text) {
		cut = len(text)
	}

	candidate := text[:cut]
	for tok.Count(candidate) > budget && len(candidate) > 0 {
		step := len(candidate) / 10
		if step < 1 {
			step = 1
		}
		candidate = candidate[:len(candidate)-step]
	}
	return candidate
}
