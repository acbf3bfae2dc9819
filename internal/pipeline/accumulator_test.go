package pipeline

import (
	"strings"
	"testing"

	"github.com/jonathan/unit-planner/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestEntry(t *testing.T) {
	assert.Equal(t, `[synthesis] {"summary":"Done"}`, Entry(types.SynthesisSection{Summary: "Done"}))

	firmUp := types.FirmUpSection{CompetencyFields: types.CompetencyFields{Code: "A1"}}
	assert.True(t, strings.HasPrefix(Entry(firmUp), `[firmUp A1] {"code":"A1"`))
}

func TestAccumulator_AppendAndSnapshot(t *testing.T) {
	acc := NewAccumulator(0)
	assert.Equal(t, "", acc.Snapshot())

	acc.Append(types.SynthesisSection{Summary: "one"})
	acc.Append(types.SynthesisSection{Summary: "two"})
	assert.Equal(t, 2, acc.Len())
	assert.Equal(t, `[synthesis] {"summary":"one"}`+"\n"+`[synthesis] {"summary":"two"}`, acc.Snapshot())

	entries := acc.Entries()
	entries[0] = "changed"
	assert.NotEqual(t, "changed", acc.Entries()[0])
}

func TestAccumulator_DropsOldestFirst(t *testing.T) {
	acc := RestoreAccumulator([]string{"aaaa", "bbbb", "cccc"}, 9)
	assert.Equal(t, "bbbb\ncccc", acc.Snapshot())

	acc = RestoreAccumulator([]string{"aaaa", "bbbb", "cccc"}, 4)
	assert.Equal(t, "cccc", acc.Snapshot())
}

func TestAccumulator_CutsOversizedNewestEntry(t *testing.T) {
	acc := RestoreAccumulator([]string{"old", "héllo world"}, 2)
	assert.Equal(t, "h", acc.Snapshot(), "never splits a rune")
}

func TestRestoreAccumulator_Copies(t *testing.T) {
	entries := []string{"a"}
	acc := RestoreAccumulator(entries, 0)
	entries[0] = "b"
	assert.Equal(t, "a", acc.Snapshot())
}
