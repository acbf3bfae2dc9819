package prompts

import (
	"fmt"
	"strings"

	"github.com/jonathan/unit-planner/internal/types"
)

// Prompt files
const (
	SectionsFile   = "sections.json"
	OutlineFile    = "outline.json"
	CorrectiveFile = "corrective.json"
)

// maxEchoBytes bounds how much of a failed response is echoed back in a corrective prompt
const maxEchoBytes = 16 * 1024

// BuildSectionPrompt builds the first-attempt prompt for one section task.
// priorSections is the accumulated context; it is omitted when empty.
func BuildSectionPrompt(input *types.GenerationInput, task types.SectionTask, priorSections string) (string, error) {
	if task.Type.NeedsCompetency() && task.Competency == nil {
		return "", fmt.Errorf("section %s requires a competency", task.Type)
	}

	tmpl, err := Get(SectionsFile, string(task.Type))
	if err != nil {
		return "", err
	}
	common, err := Get(SectionsFile, "common-rules")
	if err != nil {
		return "", err
	}
	prior := ""
	if strings.TrimSpace(priorSections) != "" {
		if prior, err = Get(SectionsFile, "prior-sections"); err != nil {
			return "", err
		}
	}

	// Templates are expanded first so run data is only substituted once.
	tmpl = Format(tmpl, map[string]string{"CommonRules": common})
	tmpl = Format(tmpl, map[string]string{"PriorSections": prior})

	data := inputData(input)
	data["Context"] = priorSections
	if c := task.Competency; c != nil {
		data["Code"] = c.Code
		data["Competency"] = c.Text
	}
	return strings.TrimSpace(Format(tmpl, data)), nil
}

// BuildOutlinePrompt builds the competency classification prompt
func BuildOutlinePrompt(input *types.GenerationInput) (string, error) {
	tmpl, err := Get(OutlineFile, "classify-competencies")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(Format(tmpl, inputData(input))), nil
}

// CorrectiveData is everything a corrective prompt refers to
type CorrectiveData struct {
	// Task names the request being corrected, e.g. "firmUp(A1)" or "outline"
	Task           string
	RequiredKeys   []string
	OriginalPrompt string
	PreviousOutput string
	Error          string
}

// BuildCorrectivePrompt asks the service to fix its previous output given the exact error
func BuildCorrectivePrompt(data CorrectiveData) (string, error) {
	tmpl, err := Get(CorrectiveFile, "correct-output")
	if err != nil {
		return "", err
	}
	previous := data.PreviousOutput
	if len(previous) > maxEchoBytes {
		previous = strings.ToValidUTF8(previous[:maxEchoBytes], "") + "\n[truncated]"
	}
	if strings.TrimSpace(previous) == "" {
		previous = "(empty response)"
	}
	return strings.TrimSpace(Format(tmpl, map[string]string{
		"Task":           data.Task,
		"Error":          data.Error,
		"PreviousOutput": previous,
		"RequiredKeys":   strings.Join(data.RequiredKeys, ", "),
		"OriginalPrompt": data.OriginalPrompt,
	})), nil
}

func inputData(input *types.GenerationInput) map[string]string {
	if input == nil {
		input = &types.GenerationInput{}
	}
	return map[string]string{
		"ContentStandard":     input.ContentStandard,
		"PerformanceStandard": input.PerformanceStandard,
		"Competencies":        input.CompetenciesRaw,
		"SourceTitles":        strings.Join(input.SourceTitles, "\n"),
		"Language":            input.Language.DisplayName(),
		"Register":            input.Language.Register(),
		"TargetStem":          input.Language.TargetStem(),
	}
}
