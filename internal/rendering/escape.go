package rendering

import "strings"

// EscapeMarkdown escapes characters that would otherwise turn generated text
// into Markdown syntax: \ ` * _ [ ] < > | #
// Newlines become spaces so the result is safe inside a heading or table cell.
func EscapeMarkdown(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) + len(text)/4)

	for _, r := range text {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '<', '>', '|', '#':
			result.WriteByte('\\')
			result.WriteRune(r)
		case '\r':
		case '\n':
			result.WriteByte(' ')
		default:
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
