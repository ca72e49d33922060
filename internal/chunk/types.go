// Package chunk implements the content-aware chunker: it classifies a blob
// as code, prose, or binary and produces overlap-respecting, token-budgeted
// chunks with stable identifiers.
package chunk

// Unit distinguishes whether a Chunk's Start/End are character offsets or
// line numbers.
type Unit string

const (
	UnitChar Unit = "char"
	UnitLine Unit = "line"
)

// Type is the coarse content classification of a Chunk.
type Type string

const (
	TypeCode Type = "code"
	TypeText Type = "text"
)

// Chunk is the chunker's output unit, consumed by the Incremental Updater
// and stored as a Chunk Row.
type Chunk struct {
	DocURI     string // origin path or URL
	ChunkID    string // "<doc_uri>_<ordinal>", unique within DocURI
	Text       string // normalized content
	Raw        string // debug-only pre-normalization text, optional
	TokenCount int
	Start      int // character or line position, per Unit
	End        int
	Unit       Unit
	Type       Type
}

// TokenCounter estimates the token count of a piece of text. Satisfied by
// *tokenizer.Tokenizer.
type TokenCounter interface {
	Count(text string) int
}

// Options configures chunking behavior.
type Options struct {
	// MinTokens is the minimum viable chunk size; undersized trailing
	// chunks are merged forward when possible.
	MinTokens int
	// MaxTokens bounds every chunk's token count.
	MaxTokens int
	// OverlapFraction is the fraction of MaxTokens retained between
	// consecutive chunks, capped at 0.6.
	OverlapFraction float64
}
