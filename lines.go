package codemask

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DocstringMode selects how triple-quoted blocks affect line eligibility.
type DocstringMode int

const (
	// DocstringLines only looks at each line on its own: a line is skipped
	// when it starts with a skip prefix, so the interior of a multi-line
	// docstring stays eligible for masking.
	DocstringLines DocstringMode = iota
	// DocstringBlocks tracks opening and closing triple quotes and skips
	// every line of a docstring block.
	DocstringBlocks
)

func (mode DocstringMode) String() string {
	switch mode {
	case DocstringLines:
		return "line"
	case DocstringBlocks:
		return "block"
	}
	return "unknown"
}

var docstringDelimiters = []string{`"""`, "'''"}

// IsSpace reports whether r is whitespace for the purpose of stripping code
// lines: Unicode whitespace plus the ASCII information separators.
func IsSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// Strip trims leading and trailing whitespace as defined by IsSpace.
func Strip(s string) string {
	return strings.TrimFunc(s, IsSpace)
}

// LeadingSpace returns the whitespace prefix of a line.
func LeadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeftFunc(line, IsSpace))]
}

func isLineBoundary(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e',
		'\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// SplitLines
// Splits text on every line boundary: \n, \r\n, \r, \v, \f, \x1c-\x1e,
// U+0085, U+2028 and U+2029. Boundaries are dropped, and a trailing boundary
// does not produce an empty final line. Empty input yields no lines.
func SplitLines(text string) []string {
	lines := make([]string, 0, strings.Count(text, "\n")+1)
	start := 0
	for idx := 0; idx < len(text); {
		r, size := utf8.DecodeRuneInString(text[idx:])
		if !isLineBoundary(r) {
			idx += size
			continue
		}
		lines = append(lines, text[start:idx])
		idx += size
		if r == '\r' && idx < len(text) && text[idx] == '\n' {
			idx++
		}
		start = idx
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// lineClassifier decides, line by line, whether a line is excluded from
// masking. In DocstringBlocks mode it carries the open delimiter across
// lines, so one classifier serves exactly one text.
type lineClassifier struct {
	prefixes *RuneNode
	mode     DocstringMode
	open     string
}

// skip reports whether the already stripped line is excluded.
func (c *lineClassifier) skip(stripped string) bool {
	if c.mode == DocstringBlocks && c.open != "" {
		if strings.Contains(stripped, c.open) {
			c.open = ""
		}
		return true
	}
	if stripped == "" {
		return true
	}
	skipped := c.prefixes.HasPrefix(stripped)
	if c.mode == DocstringBlocks && !strings.HasPrefix(stripped, "#") {
		if delim := firstDelimiter(stripped); delim != "" &&
			strings.Count(stripped, delim)%2 == 1 {
			c.open = delim
			return true
		}
	}
	return skipped
}

// firstDelimiter returns the docstring delimiter occurring earliest in s.
func firstDelimiter(s string) string {
	best, bestIdx := "", -1
	for _, delim := range docstringDelimiters {
		if idx := strings.Index(s, delim); idx >= 0 &&
			(bestIdx < 0 || idx < bestIdx) {
			best, bestIdx = delim, idx
		}
	}
	return best
}

// classify returns, for each line, whether it is skipped.
func (c *lineClassifier) classify(lines []string) []bool {
	skips := make([]bool, len(lines))
	for idx, line := range lines {
		skips[idx] = c.skip(Strip(line))
	}
	return skips
}

// LogicalLines
// Returns the stripped, non-empty lines of `code` that do not start with one
// of the default skip prefixes, in order.
func LogicalLines(code string) []string {
	return logicalLines(SplitLines(code), &lineClassifier{
		prefixes: defaultPrefixTree,
		mode:     DocstringLines,
	})
}

var defaultPrefixTree = NewRuneTree(DefaultSkipPrefixes)

func logicalLines(lines []string, c *lineClassifier) []string {
	chunks := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := Strip(line)
		if !c.skip(stripped) {
			chunks = append(chunks, stripped)
		}
	}
	return chunks
}
