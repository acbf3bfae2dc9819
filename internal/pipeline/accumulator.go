package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/unit-planner/internal/types"
)

// Accumulator is the running log of generated sections that is shown to
// later prompts as "already written" material. Entries are append-only.
type Accumulator struct {
	entries []string
	// maxBytes bounds Snapshot; 0 means unlimited
	maxBytes int
}

// NewAccumulator returns an empty accumulator
func NewAccumulator(maxBytes int) *Accumulator {
	return &Accumulator{maxBytes: maxBytes}
}

// RestoreAccumulator rebuilds an accumulator from persisted entries
func RestoreAccumulator(entries []string, maxBytes int) *Accumulator {
	return &Accumulator{entries: append([]string(nil), entries...), maxBytes: maxBytes}
}

// Entry is the compact log line for one result, e.g. `[firmUp A1] {...}`
func Entry(r types.SectionResult) string {
	label := string(r.SectionType())
	if c, ok := types.CompetencyOf(r); ok && c.Code != "" {
		label += " " + c.Code
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("[%s] %+v", label, r)
	}
	return fmt.Sprintf("[%s] %s", label, data)
}

// Append adds r to the log
func (a *Accumulator) Append(r types.SectionResult) {
	a.entries = append(a.entries, Entry(r))
}

// Entries returns a copy of the log
func (a *Accumulator) Entries() []string {
	return append([]string(nil), a.entries...)
}

// Len returns the number of entries
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Snapshot returns the log as one block, one entry per line. With a byte
// limit the oldest entries are dropped first; a newest entry that alone
// exceeds the limit is cut.
func (a *Accumulator) Snapshot() string {
	if a.maxBytes <= 0 {
		return strings.Join(a.entries, "\n")
	}

	size := 0
	first := len(a.entries)
	for i := len(a.entries) - 1; i >= 0; i-- {
		n := len(a.entries[i])
		if first < len(a.entries) {
			n++ // separator
		}
		if size+n > a.maxBytes {
			break
		}
		size += n
		first = i
	}
	if first == len(a.entries) && len(a.entries) > 0 {
		return cut(a.entries[len(a.entries)-1], a.maxBytes)
	}
	return strings.Join(a.entries[first:], "\n")
}

// cut shortens s to at most n bytes without splitting a rune
func cut(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
