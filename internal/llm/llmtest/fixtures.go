package llmtest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/unit-planner/internal/llm"
	"github.com/jonathan/unit-planner/internal/schemas"
	"github.com/jonathan/unit-planner/internal/types"
)

// SectionObject returns an object carrying every required key of t
func SectionObject(t types.SectionType, code string) map[string]any {
	obj := make(map[string]any)
	for _, k := range schemas.RequiredKeys(t) {
		obj[k] = fmt.Sprintf("%s %s", k, code)
	}
	obj["type"] = string(t)
	if t.NeedsCompetency() {
		obj["code"] = code
		obj["learningTargets"] = []string{"I can do " + code}
		obj["inPersonActivity"] = map[string]string{"instructions": "Do " + code, "materials": "Paper"}
	}
	switch t {
	case types.SectionExplore:
		obj["essentialQuestions"] = []string{"Why " + code + "?"}
	case types.SectionPerformanceTask:
		obj["graspsTask"] = map[string]string{"goal": "Goal", "role": "Role"}
		obj["rubric"] = []map[string]string{{"criteria": "Content", "description": "Accurate", "points": "20"}}
	case types.SectionValues:
		obj["values"] = []map[string]string{{"name": "Maka-Diyos", "description": "Gratitude"}}
	}
	return obj
}

// SectionJSON is SectionObject serialized
func SectionJSON(t types.SectionType, code string) string {
	data, err := json.Marshal(SectionObject(t, code))
	if err != nil {
		panic(err)
	}
	return string(data)
}

// OutlineJSON builds an outline response from competency texts per stage.
// Codes follow the A/M/T convention.
func OutlineJSON(acquisition, meaningMaking, transfer []string) string {
	bucket := func(prefix string, items []string) []map[string]string {
		out := make([]map[string]string, 0, len(items))
		for i, text := range items {
			out = append(out, map[string]string{"code": fmt.Sprintf("%s%d", prefix, i+1), "competency": text})
		}
		return out
	}
	data, err := json.Marshal(map[string]any{
		"firmUp":   bucket("A", acquisition),
		"deepen":   bucket("M", meaningMaking),
		"transfer": bucket("T", transfer),
	})
	if err != nil {
		panic(err)
	}
	return string(data)
}

var (
	typePattern = regexp.MustCompile(`"type": "(\w+)"`)
	codePattern = regexp.MustCompile(`"code": "([A-Z]+\d+)"`)
)

// SectionTypeOf finds the section a prompt asks for
func SectionTypeOf(prompt string) (types.SectionType, string) {
	m := typePattern.FindStringSubmatch(prompt)
	if m == nil {
		return "", ""
	}
	code := ""
	if c := codePattern.FindStringSubmatch(prompt); c != nil {
		code = c[1]
	}
	return types.SectionType(m[1]), code
}

// SectionResponder answers every section prompt with a valid section and the
// outline prompt with outline, wrapping answers in prose and a fence.
func SectionResponder(outline string) func(string, llm.Options) (string, error) {
	return func(prompt string, _ llm.Options) (string, error) {
		if strings.Contains(prompt, "curriculum mapper") {
			return outline, nil
		}
		t, code := SectionTypeOf(prompt)
		if !t.Valid() {
			return "", &llm.GenerationError{Message: "unrecognized prompt"}
		}
		return "Here you go:\n```json\n" + SectionJSON(t, code) + "\n```", nil
	}
}
