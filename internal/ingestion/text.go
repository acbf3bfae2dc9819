package ingestion

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	multiSpace    = regexp.MustCompile(`\s+`)
	blankRun      = regexp.MustCompile(`\n\n\n+`)
	listMarker    = regexp.MustCompile(`^(?:[-*•·]|\(?\d{1,3}[.)]|\(?[a-zA-Z][.)])(?:\s+|$)`)
	competencySep = regexp.MustCompile(`\s*;\s*`)
)

// CleanText cleans and normalizes text content while preserving structure
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	// 1. Normalize line endings (CRLF → LF)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	// 2. Split into lines for processing
	lines := strings.Split(content, "\n")

	// 3. Process each line
	cleanedLines := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned := cleanLine(line)
		cleanedLines = append(cleanedLines, cleaned)
	}

	// 4. Join lines
	result := strings.Join(cleanedLines, "\n")

	// 5. Remove excessive blank lines (max 2 consecutive)
	result = removeExcessiveBlankLines(result)

	// 6. Trim leading/trailing whitespace from entire content
	result = strings.TrimSpace(result)

	return result
}

// cleanLine cleans a single line while preserving structure
func cleanLine(line string) string {
	// Trim trailing whitespace
	line = strings.TrimRight(line, " \t")

	// Handle empty lines
	if strings.TrimSpace(line) == "" {
		return ""
	}

	// Preserve headings (Markdown # or ## etc.)
	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "#") {
		// Keep markdown headings as-is, normalize leading spaces to 0
		return trimmed
	}

	// Preserve bullet lists (Markdown - or *)
	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		// Preserve indentation before bullet, but normalize
		indent := len(line) - len(trimmed)
		if indent > 0 {
			return strings.Repeat(" ", indent) + trimmed
		}
		return trimmed
	}

	// For regular lines, normalize multiple spaces to single space
	// but preserve intentional indentation at start of line
	leadingSpace := len(line) - len(trimmed)
	content := strings.TrimSpace(line)
	// Normalize spaces in content (multiple spaces → single)
	content = multiSpace.ReplaceAllString(content, " ")
	if leadingSpace > 0 {
		return strings.Repeat(" ", leadingSpace) + content
	}
	return content
}

// removeExcessiveBlankLines reduces consecutive blank lines to max 2
func removeExcessiveBlankLines(content string) string {
	// Replace 3+ consecutive newlines with 2 newlines
	return blankRun.ReplaceAllString(content, "\n\n")
}

// NormalizeText applies Unicode NFC normalization and then CleanText
func NormalizeText(content string) string {
	return CleanText(norm.NFC.String(content))
}

// SplitCompetencies breaks pasted competency text into one entry per competency.
// Lines are split on newlines and semicolons; list markers such as "-", "1." or
// "(a)" are stripped and blank entries dropped. Model-style codes ("A1: ...")
// are left in place for the outline step to pick up.
func SplitCompetencies(raw string) []string {
	raw = NormalizeText(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		for _, part := range competencySep.Split(line, -1) {
			part = strings.TrimSpace(part)
			part = strings.TrimSpace(listMarker.ReplaceAllString(part, ""))
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// NormalizeCompetencies rewrites pasted competency text as one competency per line
func NormalizeCompetencies(raw string) string {
	return strings.Join(SplitCompetencies(raw), "\n")
}
