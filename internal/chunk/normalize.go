package chunk

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	horizontalWSRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
	unitScannerRe  = regexp.MustCompile(`[A-Za-z0-9_]+|[^\sA-Za-z0-9_]+|[ \t]+|\n`)
)

// normalizeWhitespace collapses internal horizontal-whitespace runs to a
// single space, preserves single newlines, and collapses runs of 3+
// newlines down to exactly two (one blank line). NFC-normalizes the text
// first so equivalent Unicode forms chunk identically.
func normalizeWhitespace(text string) string {
	text = norm.NFC.String(text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(horizontalWSRe.ReplaceAllString(line, " "), " ")
	}
	joined := strings.Join(lines, "\n")
	return blankLinesRe.ReplaceAllString(joined, "\n\n")
}

// splitUnits tokenizes normalized text into atomic units (word, punctuation
// run, whitespace run) whose concatenation reconstructs the input exactly.
func splitUnits(text string) []string {
	return unitScannerRe.FindAllString(text, -1)
}
