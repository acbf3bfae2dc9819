package parsing

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode"
)

// RepairPass is one best-effort normalization of near-valid JSON
type RepairPass struct {
	Name  string
	Apply func(string) string
}

// RepairPasses are applied cumulatively, in this order, until the text parses
var RepairPasses = []RepairPass{
	{Name: "strip_fences", Apply: StripFences},
	{Name: "smart_quotes", Apply: ReplaceSmartQuotes},
	{Name: "control_chars", Apply: CollapseControlChars},
	{Name: "quote_keys", Apply: QuoteBareKeys},
	{Name: "trailing_commas", Apply: RemoveTrailingCommas},
	{Name: "escape_backslashes", Apply: EscapeBackslashes},
}

// ParseJSON parses raw as a JSON object, repairing it if the strict parse fails.
// Numbers are kept as json.Number.
func ParseJSON(raw string) (map[string]any, error) {
	obj, firstErr := decodeObject(raw)
	if firstErr == nil {
		return obj, nil
	}

	var applied []string
	current := raw
	for _, pass := range RepairPasses {
		next := pass.Apply(current)
		if next == current {
			continue
		}
		current = next
		applied = append(applied, pass.Name)
		if obj, err := decodeObject(current); err == nil {
			return obj, nil
		}
	}

	return nil, &InvalidJSONError{Message: firstErr.Error(), Applied: applied, Cause: firstErr}
}

var errNotObject = errors.New("top-level value is not a JSON object")

// decodeObject is a strict parse that rejects trailing data and non-object values
func decodeObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

// StripFences removes any remaining markdown fence markers
func StripFences(s string) string {
	if !strings.Contains(s, fence) {
		return s
	}
	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, fence) && !strings.ContainsAny(trimmed[len(fence):], "{}[]\"") {
			continue
		}
		b.WriteString(strings.ReplaceAll(line, fence, ""))
	}
	return strings.TrimSpace(b.String())
}

// ReplaceSmartQuotes turns typographic double quotes used as JSON delimiters
// into ASCII quotes. Typographic quotes inside string content are kept.
func ReplaceSmartQuotes(s string) string {
	if !strings.ContainsAny(s, smartDoubleQuotes) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	src := []rune(s)
	inString, escaped := false, false
	for i := 0; i < len(src); i++ {
		r := src[i]
		isSmart := strings.ContainsRune(smartDoubleQuotes, r)
		if !inString {
			if r == '"' || isSmart {
				inString = true
				b.WriteByte('"')
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inString = false
		case isSmart && closesString(src[i+1:]):
			inString = false
			b.WriteByte('"')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const smartDoubleQuotes = "\u201c\u201d\u201e\u201f"

// closesString reports whether the next non-space rune ends a JSON string token
func closesString(rest []rune) bool {
	for _, r := range rest {
		if unicode.IsSpace(r) {
			continue
		}
		return r == ':' || r == ',' || r == '}' || r == ']'
	}
	return true
}

// CollapseControlChars replaces each run of raw control characters with one space
func CollapseControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
			continue
		}
		inRun = false
		b.WriteRune(r)
	}
	return b.String()
}

// QuoteBareKeys wraps unquoted object keys in double quotes
func QuoteBareKeys(s string) string {
	var b bytes.Buffer
	b.Grow(len(s) + 16)
	src := []rune(s)
	inString, escaped := false, false
	// expectKey is true right after '{' or ',' outside strings
	expectKey := false
	for i := 0; i < len(src); i++ {
		r := src[i]
		if inString {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch {
		case r == '"':
			inString = true
			expectKey = false
		case r == '{' || r == ',':
			expectKey = true
		case unicode.IsSpace(r):
		case expectKey && isKeyStart(r):
			j := i
			for j < len(src) && isKeyPart(src[j]) {
				j++
			}
			k := j
			for k < len(src) && unicode.IsSpace(src[k]) {
				k++
			}
			expectKey = false
			if k < len(src) && src[k] == ':' {
				b.WriteByte('"')
				b.WriteString(string(src[i:j]))
				b.WriteByte('"')
				i = j - 1
				continue
			}
		default:
			expectKey = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isKeyStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isKeyPart(r rune) bool {
	return isKeyStart(r) || r == '-' || unicode.IsDigit(r)
}

// RemoveTrailingCommas drops commas that directly precede '}' or ']'
func RemoveTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	src := []rune(s)
	inString, escaped := false, false
	for i := 0; i < len(src); i++ {
		r := src[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			b.WriteRune(r)
			continue
		}
		if r == '"' {
			inString = true
		}
		if r == ',' {
			j := i + 1
			for j < len(src) && unicode.IsSpace(src[j]) {
				j++
			}
			if j < len(src) && (src[j] == '}' || src[j] == ']') {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeBackslashes doubles backslashes inside strings that do not start a valid escape
func EscapeBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	src := []rune(s)
	inString := false
	for i := 0; i < len(src); i++ {
		r := src[i]
		if !inString {
			if r == '"' {
				inString = true
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case '"':
			inString = false
			b.WriteRune(r)
		case '\\':
			if i+1 < len(src) && validEscape(src[i+1:]) {
				b.WriteRune(r)
				b.WriteRune(src[i+1])
				i++
				continue
			}
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validEscape reports whether rest (the text after a backslash) starts a JSON escape
func validEscape(rest []rune) bool {
	switch rest[0] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return true
	case 'u':
		if len(rest) < 5 {
			return false
		}
		for _, r := range rest[1:5] {
			if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
