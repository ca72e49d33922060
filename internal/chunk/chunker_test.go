package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter is a trivial TokenCounter used so chunking tests are not
// coupled to the real tokenizer's vocabulary.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(strings.Fields(text))
}

func defaultOptions() Options {
	return Options{MinTokens: 5, MaxTokens: 50, OverlapFraction: 0.2}
}

func TestChunk_EmptyInputProducesNoChunks(t *testing.T) {
	c := New(wordCounter{}, defaultOptions())
	assert.Nil(t, c.Chunk("", "empty.txt"))
}

func TestChunk_BinaryContentProducesNoChunks(t *testing.T) {
	c := New(wordCounter{}, defaultOptions())
	binary := string([]byte{0x00, 0x01, 0x02, 'a', 'b', 'c'})
	assert.Nil(t, c.Chunk(binary, "blob.bin"))
}

func TestChunk_CppSourceIsLineUnitCode(t *testing.T) {
	src := `#include <vector>

class Widget {
public:
    void run() {
        for (int i = 0; i < 10; i++) {
            doThing(i);
        }
    }
private:
    int state_;
};
`
	c := New(wordCounter{}, Options{MinTokens: 1, MaxTokens: 100, OverlapFraction: 0.2})
	chunks := c.Chunk(src, "widget.cpp")
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, TypeCode, ch.Type)
		assert.Equal(t, UnitLine, ch.Unit)
	}
	reconstructed := reconstructLineChunks(chunks)
	assertSameNonWhitespace(t, src, reconstructed)
}

func TestChunk_MarkdownWithFencesForcesTextType(t *testing.T) {
	src := "# Title\n\n```go\nfunc main() {}\n```\n\nSome prose follows the fenced block.\n\n```go\nfunc other() {}\n```\n"
	c := New(wordCounter{}, defaultOptions())
	chunks := c.Chunk(src, "doc.md")
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, TypeText, ch.Type)
		assert.Equal(t, UnitChar, ch.Unit)
	}
}

func TestChunk_TokenCountNeverExceedsMax(t *testing.T) {
	opts := Options{MinTokens: 1, MaxTokens: 10, OverlapFraction: 0.2}
	c := New(wordCounter{}, opts)
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, "word")
	}
	src := strings.Join(words, " ")
	chunks := c.Chunk(src, "long.txt")
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, opts.MaxTokens)
	}
}

func TestChunk_ConsecutiveChunksShareUnit(t *testing.T) {
	opts := Options{MinTokens: 1, MaxTokens: 8, OverlapFraction: 0.2}
	c := New(wordCounter{}, opts)
	src := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta ", 10)
	chunks := c.Chunk(src, "prose.txt")
	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].Unit, chunks[i].Unit)
	}
}

func TestChunk_IsDeterministic(t *testing.T) {
	c := New(wordCounter{}, defaultOptions())
	src := "one two three four five six seven eight nine ten eleven twelve"
	a := c.Chunk(src, "det.txt")
	b := c.Chunk(src, "det.txt")
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].Text, b[i].Text)
		assert.Equal(t, a[i].ChunkID, b[i].ChunkID)
	}
}

func TestChunk_ChunkIDIsDocURIPlusOrdinal(t *testing.T) {
	opts := Options{MinTokens: 1, MaxTokens: 6, OverlapFraction: 0.2}
	c := New(wordCounter{}, opts)
	src := "one two three four five six seven eight nine ten eleven twelve"
	chunks := c.Chunk(src, "ids.txt")
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, chunkID("ids.txt", i), ch.ChunkID)
	}
}

func TestChunk_UndersizedTrailingChunkIsKeptWhenMergeWouldExceedMax(t *testing.T) {
	opts := Options{MinTokens: 20, MaxTokens: 30, OverlapFraction: 0}
	c := New(wordCounter{}, opts)
	src := strings.Repeat("word ", 45)
	chunks := c.Chunk(src, "merge.txt")
	// 45 words pack into 30 + 15; the 15-token tail is below MinTokens but
	// has no successor, and 30+15 would exceed MaxTokens, so it stays.
	require.Len(t, chunks, 2)
	assert.Equal(t, 30, chunks[0].TokenCount)
	assert.Equal(t, 15, chunks[1].TokenCount)
}

// reconstructLineChunks joins a line-unit chunk sequence back together,
// de-duplicating the overlapped lines at each boundary.
func reconstructLineChunks(chunks []Chunk) string {
	var lines []string
	for _, ch := range chunks {
		for i, l := range strings.Split(ch.Text, "\n") {
			lineNo := ch.Start + i
			if lineNo <= len(lines) {
				continue
			}
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// assertSameNonWhitespace compares two strings ignoring all whitespace, to
// validate the chunk-reconstruction invariant without being sensitive to
// normalization of insignificant whitespace.
func assertSameNonWhitespace(t *testing.T, want, got string) {
	t.Helper()
	strip := func(s string) string {
		return strings.Join(strings.Fields(s), "")
	}
	assert.Equal(t, strip(want), strip(got))
}
