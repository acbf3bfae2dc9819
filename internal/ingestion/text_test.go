package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText_PreserveMarkdownHeadings(t *testing.T) {
	input := "# Title\n## Subtitle\nContent here"
	result := CleanText(input)

	assert.Contains(t, result, "# Title")
	assert.Contains(t, result, "## Subtitle")
	assert.Contains(t, result, "Content here")
}

func TestCleanText_PreserveBulletLists(t *testing.T) {
	input := "- Item 1\n- Item 2\n* Item 3"
	result := CleanText(input)

	assert.Contains(t, result, "- Item 1")
	assert.Contains(t, result, "- Item 2")
	assert.Contains(t, result, "* Item 3")
}

func TestCleanText_NormalizeWhitespace(t *testing.T) {
	input := "Line    with    multiple    spaces"
	result := CleanText(input)

	assert.Contains(t, result, "Line with multiple spaces")
	assert.NotContains(t, result, "    ") // Should not have 4 spaces
}

func TestCleanText_RemoveExcessiveBlankLines(t *testing.T) {
	input := "Line 1\n\n\n\n\nLine 2"
	result := CleanText(input)

	// Should have max 2 consecutive newlines
	assert.NotContains(t, result, "\n\n\n\n")
	// But should preserve up to 2
	assert.Contains(t, result, "\n\n")
}

func TestCleanText_NormalizeLineEndings(t *testing.T) {
	input := "Line 1\r\nLine 2\rLine 3\nLine 4"
	result := CleanText(input)

	// All should be normalized to LF
	assert.NotContains(t, result, "\r\n")
	assert.NotContains(t, result, "\r")
	assert.Contains(t, result, "\n")
}

func TestCleanText_DeterministicOutput(t *testing.T) {
	input := "Test content   with   spaces\n\n\nMultiple   blank   lines"
	result1 := CleanText(input)
	result2 := CleanText(input)

	// Same input should produce identical output
	assert.Equal(t, result1, result2)
}

func TestCleanText_EmptyInput(t *testing.T) {
	result := CleanText("")
	assert.Empty(t, result)
}

func TestCleanText_OnlyWhitespace(t *testing.T) {
	result := CleanText("   \n  \n  ")
	assert.Empty(t, result)
}

func TestCleanText_SpecialCharacters(t *testing.T) {
	input := "Test with émojis 🚀 and spéciàl chàracters"
	result := CleanText(input)

	assert.Contains(t, result, "émojis")
	assert.Contains(t, result, "🚀")
	assert.Contains(t, result, "spéciàl chàracters")
}

func TestCleanText_PreserveIndentation(t *testing.T) {
	input := "    Indented line\n  Less indented"
	result := CleanText(input)

	// Should preserve relative indentation
	assert.Contains(t, result, "Indented")
	assert.Contains(t, result, "Less indented")
}

func TestNormalizeText_ComposesAccents(t *testing.T) {
	decomposed := "Pagsusuri ng tula\u0301  at  kuwento"
	result := NormalizeText(decomposed)

	assert.Equal(t, "Pagsusuri ng tul\u00e1 at kuwento", result)
}

func TestSplitCompetencies(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "one per line",
			raw:  "Identify parts of a cell\nExplain osmosis",
			want: []string{"Identify parts of a cell", "Explain osmosis"},
		},
		{
			name: "bullets and numbering",
			raw:  "- Identify parts of a cell\n2. Explain osmosis\n(c) Design a model cell\n• Compare cells",
			want: []string{"Identify parts of a cell", "Explain osmosis", "Design a model cell", "Compare cells"},
		},
		{
			name: "semicolons",
			raw:  "Identify parts of a cell; Explain osmosis ;Design a model cell",
			want: []string{"Identify parts of a cell", "Explain osmosis", "Design a model cell"},
		},
		{
			name: "codes kept",
			raw:  "A1: Identify parts of a cell\n\n\n\nT1: Design a model cell",
			want: []string{"A1: Identify parts of a cell", "T1: Design a model cell"},
		},
		{
			name: "blank",
			raw:  "  \n\t\n",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitCompetencies(tt.raw))
		})
	}
}

func TestNormalizeCompetencies(t *testing.T) {
	result := NormalizeCompetencies("1) Identify   parts of a cell\r\n2) Explain osmosis")
	assert.Equal(t, "Identify parts of a cell\nExplain osmosis", result)
}
