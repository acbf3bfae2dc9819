// Package outline classifies raw competency text into coded UbD stages and
// builds the section task queue from them.
package outline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/prompts"
	"github.com/jonathan/unit-planner/internal/schemas"
	"github.com/jonathan/unit-planner/internal/types"
	"go.uber.org/zap"
)

// bucketKeys maps each category to its key in the outline response
var bucketKeys = map[types.Category]string{
	types.CategoryAcquisition:   "firmUp",
	types.CategoryMeaningMaking: "deepen",
	types.CategoryTransfer:      "transfer",
}

// Decomposer is the OutlineDecomposer
type Decomposer struct {
	gen    *generation.Generator
	logger *zap.Logger
}

// NewDecomposer creates a Decomposer that classifies through gen
func NewDecomposer(gen *generation.Generator) *Decomposer {
	return &Decomposer{gen: gen, logger: gen.Options().Logger}
}

// Decompose classifies competenciesRaw with one generation request (using the
// standard extract, repair and validate attempt loop) and returns the coded
// items in queue order. Missing or duplicate codes are replaced with fallback codes.
func (d *Decomposer) Decompose(ctx context.Context, competenciesRaw string) ([]types.CompetencyItem, error) {
	if strings.TrimSpace(competenciesRaw) == "" {
		return nil, &ClassificationFailedError{Message: "no competencies given"}
	}

	input := *d.gen.Input()
	input.CompetenciesRaw = competenciesRaw
	prompt, err := prompts.BuildOutlinePrompt(&input)
	if err != nil {
		return nil, &ClassificationFailedError{Message: "cannot build outline prompt", Cause: err}
	}

	obj, err := d.gen.GenerateObject(ctx, generation.Request{
		Label:           "outline",
		Metric:          "outline",
		Schema:          schemas.OutlineSchema,
		Prompt:          prompt,
		MaxOutputTokens: d.gen.Options().OutlineMaxTokens,
	})
	if err != nil {
		return nil, &ClassificationFailedError{Message: "outline generation failed", Cause: err}
	}

	items := ParseOutline(obj)
	if len(items) == 0 {
		return nil, &ClassificationFailedError{Message: "outline contains no competencies"}
	}
	assigned := AssignCodes(items)
	for i := range items {
		if items[i].Code != assigned[i].Code {
			d.logger.Warn("assigned fallback competency code",
				zap.String("category", string(items[i].Category)),
				zap.String("model_code", items[i].Code),
				zap.String("code", assigned[i].Code))
		}
	}
	return assigned, nil
}

// codedText matches list items written as "A1: text" or "M2. text"
var codedText = regexp.MustCompile(`^([A-Za-z]{1,2}\d+)\s*[:.)\-]\s*(.+)$`)

// ParseOutline reads the three stage buckets of a validated outline object.
// Items may be {code, competency} objects or plain strings. Items without text
// are dropped; codes are returned as given (possibly empty).
func ParseOutline(obj map[string]any) []types.CompetencyItem {
	var items []types.CompetencyItem
	for _, category := range types.Categories {
		list, _ := obj[bucketKeys[category]].([]any)
		for _, raw := range list {
			code, text := parseItem(raw)
			if text == "" {
				continue
			}
			items = append(items, types.CompetencyItem{Code: code, Text: text, Category: category})
		}
	}
	return items
}

func parseItem(raw any) (code, text string) {
	switch v := raw.(type) {
	case string:
		text = strings.TrimSpace(v)
		if m := codedText.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(m[1]), strings.TrimSpace(m[2])
		}
		return "", text
	case map[string]any:
		code = strings.ToUpper(strings.TrimSpace(stringField(v, "code")))
		text = strings.TrimSpace(stringField(v, "competency", "text", "description"))
		return code, text
	default:
		return "", ""
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			return v
		case nil:
			continue
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

// AssignCodes returns a copy of items whose codes are unique across the whole
// outline. A model-provided code is kept on its first occurrence; missing and
// repeated codes get the lowest free A{n}, M{n} or T{n} for the item's category.
func AssignCodes(items []types.CompetencyItem) []types.CompetencyItem {
	out := make([]types.CompetencyItem, len(items))
	copy(out, items)

	taken := make(map[string]bool, len(out))
	pending := make([]int, 0)
	for i := range out {
		if out[i].Code == "" || taken[out[i].Code] {
			pending = append(pending, i)
			continue
		}
		taken[out[i].Code] = true
	}

	next := make(map[types.Category]int)
	for _, i := range pending {
		prefix := out[i].Category.CodePrefix()
		for {
			next[out[i].Category]++
			code := fmt.Sprintf("%s%d", prefix, next[out[i].Category])
			if !taken[code] {
				taken[code] = true
				out[i].Code = code
				break
			}
		}
	}
	return out
}
