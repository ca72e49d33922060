package chunk

import (
	"strings"
)

// Chunker splits text into token-budgeted, overlap-respecting chunks.
type Chunker struct {
	tok  TokenCounter
	opts Options
}

// New returns a Chunker using tok to count tokens.
func New(tok TokenCounter, opts Options) *Chunker {
	return &Chunker{tok: tok, opts: opts}
}

// overlapTokens computes the overlap token budget for the configured
// OverlapFraction, capped at 60% of MaxTokens.
func (c *Chunker) overlapTokens() int {
	o := c.opts.OverlapFraction * float64(c.opts.MaxTokens)
	cap := 0.6 * float64(c.opts.MaxTokens)
	if o > cap {
		o = cap
	}
	if o < 0 {
		o = 0
	}
	return int(o)
}

// Chunk classifies and splits text from uri into a deterministic sequence
// of Chunks. Binary content yields an empty slice. Empty input yields an
// empty slice.
func (c *Chunker) Chunk(text string, uri string) []Chunk {
	if len(text) == 0 {
		return nil
	}

	isBinary, typ := detectType([]byte(text), uri)
	if isBinary {
		return nil
	}

	var chunks []Chunk
	switch typ {
	case TypeCode:
		chunks = c.chunkCode(text, uri)
	default:
		chunks = c.chunkText(text, uri)
	}

	chunks = c.mergeUndersized(chunks)
	return renumber(chunks, uri)
}

// chunkText implements the text path: normalize, split into atomic units,
// pack by token budget, overlap measured in tokens from the chunk tail.
func (c *Chunker) chunkText(text string, uri string) []Chunk {
	normalized := normalizeWhitespace(text)
	units := splitUnits(normalized)
	if len(units) == 0 {
		return nil
	}

	var chunks []Chunk
	pos := 0 // character offset into normalized text
	i := 0
	overlapBudget := c.overlapTokens()

	for i < len(units) {
		var b strings.Builder
		start := pos
		startIdx := i
		j := i
		for j < len(units) {
			candidate := b.String() + units[j]
			if b.Len() > 0 && c.tok.Count(candidate) > c.opts.MaxTokens {
				break
			}
			b.WriteString(units[j])
			j++
		}
		if j == startIdx { // a single unit already exceeds MaxTokens: force it in alone
			b.WriteString(units[j])
			j++
		}

		chunkText := b.String()
		end := start + len(chunkText)
		chunks = append(chunks, Chunk{
			DocURI:     uri,
			Text:       chunkText,
			TokenCount: c.tok.Count(chunkText),
			Start:      start,
			End:        end,
			Unit:       UnitChar,
			Type:       TypeText,
		})

		if j >= len(units) {
			break
		}

		// Advance by overlap: walk back from j until overlapBudget tokens
		// are covered, then resume from there.
		back := j
		var overlapB strings.Builder
		for back > startIdx {
			candidate := units[back-1] + overlapB.String()
			if overlapB.Len() > 0 && c.tok.Count(candidate) > overlapBudget {
				break
			}
			overlapB.Reset()
			overlapB.WriteString(candidate)
			back--
		}
		if back <= i { // guarantee forward progress
			back = j
		}

		// Recompute pos for the new start index.
		consumed := strings.Join(units[i:back], "")
		pos = start + len(consumed)
		i = back
	}

	return chunks
}

// chunkCode implements the code path: split on lines, re-split any
// over-budget line with the text-path unit splitter, then pack whole
// lines by token budget with whole-line overlap.
func (c *Chunker) chunkCode(text string, uri string) []Chunk {
	rawLines := strings.Split(text, "\n")

	var lines []string
	for _, line := range rawLines {
		if c.tok.Count(line) > c.opts.MaxTokens {
			lines = append(lines, c.resplitLine(line)...)
		} else {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	overlapBudget := c.overlapTokens()
	i := 0
	lineNo := 1

	for i < len(lines) {
		startLine := lineNo
		startIdx := i
		var b strings.Builder
		j := i
		for j < len(lines) {
			sep := ""
			if b.Len() > 0 {
				sep = "\n"
			}
			candidate := b.String() + sep + lines[j]
			if b.Len() > 0 && c.tok.Count(candidate) > c.opts.MaxTokens {
				break
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(lines[j])
			j++
		}
		if j == startIdx {
			b.WriteString(lines[j])
			j++
		}

		numLines := j - startIdx
		chunkText := b.String()
		chunks = append(chunks, Chunk{
			DocURI:     uri,
			Text:       chunkText,
			TokenCount: c.tok.Count(chunkText),
			Start:      startLine,
			End:        startLine + numLines - 1,
			Unit:       UnitLine,
			Type:       TypeCode,
		})

		if j >= len(lines) {
			break
		}

		// Overlap by whole lines until the overlap budget is met.
		back := j
		overlapTok := 0
		for back > startIdx {
			lineTok := c.tok.Count(lines[back-1])
			if overlapTok > 0 && overlapTok+lineTok > overlapBudget {
				break
			}
			overlapTok += lineTok
			back--
			if overlapTok >= overlapBudget {
				break
			}
		}
		if back <= i {
			back = j
		}

		lineNo = startLine + (back - startIdx)
		i = back
	}

	return chunks
}

// resplitLine re-splits an over-budget line using the text-unit splitter,
// producing budget-respecting pieces that are re-joined by the line packer.
func (c *Chunker) resplitLine(line string) []string {
	units := splitUnits(line)
	if len(units) == 0 {
		return []string{line}
	}

	var pieces []string
	var b strings.Builder
	for _, u := range units {
		candidate := b.String() + u
		if b.Len() > 0 && c.tok.Count(candidate) > c.opts.MaxTokens {
			pieces = append(pieces, b.String())
			b.Reset()
		}
		b.WriteString(u)
	}
	if b.Len() > 0 {
		pieces = append(pieces, b.String())
	}
	return pieces
}

// mergeUndersized merges any chunk below MinTokens with the chunk that
// follows it (same DocURI), provided the combination stays within
// MaxTokens.
func (c *Chunker) mergeUndersized(chunks []Chunk) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	var out []Chunk
	i := 0
	for i < len(chunks) {
		cur := chunks[i]
		for cur.TokenCount < c.opts.MinTokens && i+1 < len(chunks) {
			next := chunks[i+1]
			sep := ""
			if cur.Unit == UnitLine {
				sep = "\n"
			}
			merged := cur.Text + sep + next.Text
			tokCount := c.tok.Count(merged)
			if tokCount > c.opts.MaxTokens {
				break
			}
			cur.Text = merged
			cur.TokenCount = tokCount
			cur.End = next.End
			i++
		}
		out = append(out, cur)
		i++
	}
	return out
}

// renumber assigns chunk_id = "<doc_uri>_<ordinal>" after merging, since
// merging can change the final chunk count.
func renumber(chunks []Chunk, uri string) []Chunk {
	for i := range chunks {
		chunks[i].ChunkID = chunkID(uri, i)
	}
	return chunks
}

func chunkID(uri string, ordinal int) string {
	return uri + "_" + itoa(ordinal)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
