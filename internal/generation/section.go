package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/unit-planner/internal/prompts"
	"github.com/jonathan/unit-planner/internal/types"
	"go.uber.org/zap"
)

// SectionGenerator produces one validated section per task
type SectionGenerator interface {
	Generate(ctx context.Context, task types.SectionTask, priorContext string) (types.SectionResult, error)
}

// Generate builds the section prompt for task, runs the attempt loop and
// returns the typed result. The result's tag always matches task.
func (g *Generator) Generate(ctx context.Context, task types.SectionTask, priorContext string) (types.SectionResult, error) {
	if !task.Type.Valid() {
		return nil, fmt.Errorf("unknown section type %q", task.Type)
	}
	prompt, err := prompts.BuildSectionPrompt(g.input, task, priorContext)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt for %s: %w", task, err)
	}

	var result types.SectionResult
	_, err = g.GenerateObject(ctx, Request{
		Label:           task.String(),
		Metric:          string(task.Type),
		Schema:          string(task.Type),
		Prompt:          prompt,
		MaxOutputTokens: g.opts.SectionMaxTokens,
		Accept: func(obj map[string]any) error {
			tag(obj, task)
			r, err := types.DecodeSectionObject(task.Type, obj)
			if err != nil {
				return err
			}
			result = r
			return nil
		},
	})
	if err != nil {
		var exhausted *GenerationExhaustedError
		if errors.As(err, &exhausted) {
			t := task
			exhausted.Task = &t
		}
		return nil, err
	}

	g.opts.Recorder.IncSectionCompleted(string(task.Type))
	g.opts.Logger.Info("section generated", zap.String("section", task.String()))
	return result, nil
}

// tag stamps the task's identity onto a validated object
func tag(obj map[string]any, task types.SectionTask) {
	obj["type"] = string(task.Type)
	if c := task.Competency; c != nil {
		obj["code"] = c.Code
		obj["competency"] = c.Text
	}
}
