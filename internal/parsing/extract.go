// Package parsing recovers JSON objects from noisy generation-service output.
package parsing

import (
	"strings"
	"unicode/utf8"
)

const fence = "```"

// ExtractJSON returns the JSON substring embedded in text.
//
// A ```json fenced block wins, then the first other fenced block that holds an
// object or array, then the span from the first '{' to the last '}'.
func ExtractJSON(text string) (string, error) {
	if body, ok := taggedFence(text, "json"); ok {
		return body, nil
	}
	if body, ok := anyFence(text); ok {
		return body, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1], nil
	}
	return "", &NoJSONFoundError{Excerpt: excerpt(text)}
}

// taggedFence finds a terminated fence opened with ```<tag> (case-insensitive)
func taggedFence(text, tag string) (string, bool) {
	offset := 0
	for {
		idx := strings.Index(text[offset:], fence)
		if idx < 0 {
			return "", false
		}
		start := offset + idx + len(fence)
		if len(text)-start >= len(tag) && strings.EqualFold(text[start:start+len(tag)], tag) {
			start += len(tag)
			end := strings.Index(text[start:], fence)
			if end < 0 {
				return "", false
			}
			return strings.TrimSpace(text[start : start+end]), true
		}
		offset = start
	}
}

// anyFence returns the first terminated fenced block whose body contains JSON
// punctuation, with a leading language identifier line removed.
func anyFence(text string) (string, bool) {
	rest := text
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			return "", false
		}
		body := rest[open+len(fence):]
		end := strings.Index(body, fence)
		if end < 0 {
			return "", false
		}
		inner := stripLanguageLine(body[:end])
		if strings.ContainsAny(inner, "{[") {
			return strings.TrimSpace(inner), true
		}
		rest = body[end+len(fence):]
	}
}

// stripLanguageLine drops a first line that looks like a fence language identifier
func stripLanguageLine(body string) string {
	idx := strings.Index(body, "\n")
	if idx < 0 {
		return body
	}
	first := strings.TrimSpace(body[:idx])
	if len(first) < 20 && !strings.ContainsAny(first, " {[\"") {
		return body[idx+1:]
	}
	return body
}

func excerpt(text string) string {
	text = strings.TrimSpace(text)
	const max = 60
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max]) + "..."
}
