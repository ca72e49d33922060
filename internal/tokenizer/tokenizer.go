// Package tokenizer implements a deterministic, WordPiece-style token-count
// estimator backed by a vocabulary file, with a bounded in-memory cache.
package tokenizer

import (
	"bufio"
	"os"
	"strings"
	"sync"
	"unicode"

	ragerrors "github.com/nesall/ragd/internal/errors"
)

// DefaultMaxInputCharsPerWord caps how many characters of a single word are
// considered before it is counted as a single [UNK] token.
const DefaultMaxInputCharsPerWord = 100

// maxCacheEntries is the point at which the token-count cache is cleared
// wholesale. The cache is a hot-path accelerator, not a correctness
// mechanism, so a full clear (rather than LRU eviction) is acceptable.
const maxCacheEntries = 10000

// unkToken is emitted for any word segment that cannot be greedily matched
// against the vocabulary.
const unkToken = "[UNK]"

// Tokenizer estimates encoded token counts via greedy longest-match against
// a fixed vocabulary, the same algorithm WordPiece tokenizers use to split
// words into subword units, but here only the resulting *count* matters.
type Tokenizer struct {
	vocab               map[string]struct{}
	maxInputCharsPerWord int

	mu    sync.Mutex
	cache map[string]int
}

// Option configures a Tokenizer at construction time.
type Option func(*Tokenizer)

// WithMaxInputCharsPerWord overrides DefaultMaxInputCharsPerWord.
func WithMaxInputCharsPerWord(n int) Option {
	return func(t *Tokenizer) {
		if n > 0 {
			t.maxInputCharsPerWord = n
		}
	}
}

// New loads a vocabulary from path (one token per line, as produced by any
// WordPiece vocab export) and returns a ready Tokenizer. Fails with
// ConfigError when the vocabulary is missing or malformed.
func New(path string, opts ...Option) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ragerrors.ConfigError("failed to open tokenizer vocabulary", err)
	}
	defer f.Close()

	vocab := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		vocab[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, ragerrors.ConfigError("failed to read tokenizer vocabulary", err)
	}
	if len(vocab) == 0 {
		return nil, ragerrors.New(ragerrors.ErrCodeVocabInvalid, "tokenizer vocabulary is empty: "+path, nil)
	}

	t := &Tokenizer{
		vocab:                vocab,
		maxInputCharsPerWord: DefaultMaxInputCharsPerWord,
		cache:                make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// NewFromVocab builds a Tokenizer directly from an in-memory vocabulary,
// primarily for tests and embedded defaults.
func NewFromVocab(tokens []string, opts ...Option) *Tokenizer {
	vocab := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		vocab[tok] = struct{}{}
	}
	t := &Tokenizer{
		vocab:                vocab,
		maxInputCharsPerWord: DefaultMaxInputCharsPerWord,
		cache:                make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Count returns the estimated encoded token count for text. Results are
// cached by the literal input string.
func (t *Tokenizer) Count(text string) int {
	t.mu.Lock()
	if n, ok := t.cache[text]; ok {
		t.mu.Unlock()
		return n
	}
	t.mu.Unlock()

	n := t.countUncached(text)

	t.mu.Lock()
	if len(t.cache) >= maxCacheEntries {
		t.cache = make(map[string]int)
	}
	t.cache[text] = n
	t.mu.Unlock()

	return n
}

// countUncached applies greedy longest-match WordPiece segmentation per
// whitespace-delimited word and sums the resulting piece counts.
func (t *Tokenizer) countUncached(text string) int {
	total := 0
	for _, word := range splitWords(text) {
		total += t.countWord(word)
	}
	return total
}

// countWord segments a single word, counting one [UNK] token when no
// segmentation is possible, per WordPiece's own fallback rule.
func (t *Tokenizer) countWord(word string) int {
	runes := []rune(word)
	if len(runes) > t.maxInputCharsPerWord {
		return 1 // treated as a single [UNK]
	}

	count := 0
	start := 0
	for start < len(runes) {
		end := len(runes)
		matched := false
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				matched = true
				break
			}
			end--
		}
		if !matched {
			// Whole remainder is unsegmentable: one [UNK] for the word.
			return count + 1
		}
		count++
		start = end
	}
	return count
}

// splitWords tokenizes on whitespace, the same coarse word boundary the
// vocabulary's "##" continuation marker assumes.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, unicode.IsSpace)
}
