package chunk

import (
	"path/filepath"
	"regexp"
	"strings"
)

// codeExtensions and textExtensions are the two whitelists consulted before
// falling back to the ratio-based heuristic for unrecognized extensions.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".java": true, ".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true,
	".cs": true, ".rb": true, ".rs": true, ".php": true, ".swift": true, ".kt": true,
	".scala": true, ".sh": true, ".bash": true, ".sql": true, ".yaml": true, ".yml": true,
	".json": true, ".toml": true, ".proto": true, ".lua": true, ".pl": true,
}

var textExtensions = map[string]bool{
	".md": true, ".txt": true, ".rst": true, ".adoc": true, ".org": true,
}

var (
	fenceLineRe   = regexp.MustCompile("^```[ \t]*$")
	classFuncRe   = regexp.MustCompile(`\b(class|def|function|func|import|package|public|private|protected|static)\b`)
	arrowFuncRe   = regexp.MustCompile(`=>`)
	loneBraceRe   = regexp.MustCompile(`^\s*[{}]\s*$`)
	lineCommentRe = regexp.MustCompile(`^\s*(//|#|--|;)`)
)

// detectType classifies raw content as binary, code, or text, per the
// sniff-then-whitelist-then-heuristic pipeline.
func detectType(content []byte, uri string) (isBinary bool, typ Type) {
	if isBinaryContent(content) {
		return true, ""
	}

	text := string(content)

	// Markdown-fence override takes priority over the ratio decision.
	if countFences(text) >= 2 {
		return false, TypeText
	}

	ext := strings.ToLower(filepath.Ext(uri))
	if codeExtensions[ext] {
		return false, TypeCode
	}
	if textExtensions[ext] {
		return false, TypeText
	}

	lines := nonEmptyLines(text)
	if len(lines) < 3 {
		return false, cheapSubstringHeuristic(text)
	}

	return false, ratioHeuristic(lines)
}

// isBinaryContent sniffs the first 1024 bytes for a NUL byte or a
// non-printable ratio above 30% (excluding \n, \r, \t).
func isBinaryContent(content []byte) bool {
	n := len(content)
	if n > 1024 {
		n = 1024
	}
	sample := content[:n]
	if n == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		if b == 0 {
			return true
		}
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 0x20 || b == 0x7f {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(n) > 0.30
}

func countFences(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if fenceLineRe.MatchString(line) {
			count++
		}
	}
	return count
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
			if len(out) >= 200 {
				break
			}
		}
	}
	return out
}

// cheapSubstringHeuristic handles the <3 non-empty-line case where the
// ratio statistics would be meaningless.
func cheapSubstringHeuristic(text string) Type {
	if strings.Contains(text, "{") || strings.Contains(text, ";") || strings.Contains(text, "def ") || strings.Contains(text, "func ") {
		return TypeCode
	}
	return TypeText
}

// ratioHeuristic implements spec.md §4.3's code/text decision over up to
// 200 non-empty lines.
func ratioHeuristic(lines []string) Type {
	total := len(lines)
	var indicators, braceLines, semicolonLines, indentLines int

	for _, line := range lines {
		if classFuncRe.MatchString(line) || arrowFuncRe.MatchString(line) || loneBraceRe.MatchString(line) || lineCommentRe.MatchString(line) {
			indicators++
		}
		if loneBraceRe.MatchString(line) {
			braceLines++
		}
		if strings.Contains(line, ";") {
			semicolonLines++
		}
		if strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "    ") {
			indentLines++
		}
	}

	codeRatio := float64(indicators) / float64(total)
	braceRatio := float64(braceLines) / float64(total)
	semicolonRatio := float64(semicolonLines) / float64(total)
	indentRatio := float64(indentLines) / float64(total)

	switch {
	case codeRatio > 0.25:
		return TypeCode
	case braceRatio > 0.15 && indicators > 2:
		return TypeCode
	case semicolonRatio > 0.20 && indicators > 2:
		return TypeCode
	case indicators > 5 && indentRatio > 0.5:
		return TypeCode
	case codeRatio > 0.1 && indentRatio > 0.6 && (braceRatio > 0.05 || semicolonRatio > 0.1):
		return TypeCode
	default:
		return TypeText
	}
}
