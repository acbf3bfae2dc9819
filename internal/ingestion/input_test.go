package ingestion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/unit-planner/internal/schemas"
	"github.com/jonathan/unit-planner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadInput_JSON(t *testing.T) {
	path := writeFile(t, "cells.json", `{
		"content_standard": "The learners demonstrate understanding of   cell structure.",
		"performance_standard": "The learners design a model cell.",
		"competencies_raw": "1. Identify parts of a cell\n2. Explain osmosis",
		"source_titles": ["Unit: Cells", "- Lesson 1: Cell Parts", "  "],
		"language": "primary",
		"unit_title": "Cells"
	}`)

	in, meta, err := LoadInput(path)
	require.NoError(t, err)

	assert.Equal(t, "The learners demonstrate understanding of cell structure.", in.ContentStandard)
	assert.Equal(t, "Identify parts of a cell\nExplain osmosis", in.CompetenciesRaw)
	assert.Equal(t, []string{"Unit: Cells", "- Lesson 1: Cell Parts"}, in.SourceTitles)
	assert.Equal(t, types.LanguagePrimary, in.Language)
	assert.Equal(t, "ULP: Cells", in.DocumentTitle())

	assert.Equal(t, path, meta.Source)
	assert.Len(t, meta.Hash, 64)
	assert.Equal(t, in.SourceTitles, meta.SourceTitles)
}

func TestLoadInput_YAML(t *testing.T) {
	path := writeFile(t, "cells.yaml", `
content_standard: Ang mga mag-aaral ay nakauunawa sa tula.
performance_standard: Nakasusulat ng sariling tula.
competencies_raw: |
  - Natutukoy ang sukat ng tula
  - Nasusuri ang tugma
language: secondary
source_titles:
  - "Unit: Tula"
`)

	in, _, err := LoadInput(path)
	require.NoError(t, err)
	assert.Equal(t, types.LanguageSecondary, in.Language)
	assert.Equal(t, "Natutukoy ang sukat ng tula\nNasusuri ang tugma", in.CompetenciesRaw)
	assert.Equal(t, []string{"Unit: Tula"}, in.SourceTitles)
	assert.Equal(t, "Unit Learning Plan", in.DocumentTitle())
}

func TestLoadInput_SchemaViolation(t *testing.T) {
	path := writeFile(t, "bad.yml", `
content_standard: cs
language: latin
`)

	_, _, err := LoadInput(path)
	require.Error(t, err)

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, path, inputErr.Path)

	var violation *schemas.SchemaViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, []string{"performance_standard", "competencies_raw"}, violation.MissingKeys)
}

func TestLoadInput_BlankAfterNormalization(t *testing.T) {
	path := writeFile(t, "blank.json", `{
		"content_standard": "cs",
		"performance_standard": "ps",
		"competencies_raw": "  \n - \n",
		"language": "primary"
	}`)

	_, _, err := LoadInput(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CompetenciesRaw")
}

func TestLoadInput_Errors(t *testing.T) {
	_, _, err := LoadInput(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")

	_, _, err = LoadInput(writeFile(t, "broken.json", `{"content_standard": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse JSON")

	_, _, err = LoadInput(writeFile(t, "empty.yaml", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestDecodeInput_UnknownFieldRejected(t *testing.T) {
	_, err := DecodeInput(".json", []byte(`{
		"content_standard": "cs",
		"performance_standard": "ps",
		"competencies_raw": "Identify",
		"language": "primary",
		"grade_level": 7
	}`))
	require.Error(t, err)
}
