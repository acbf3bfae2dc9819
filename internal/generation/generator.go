// Package generation turns one generation request into a validated JSON object,
// retrying with corrective prompts until it succeeds or attempts run out.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/unit-planner/internal/llm"
	"github.com/jonathan/unit-planner/internal/metrics"
	"github.com/jonathan/unit-planner/internal/parsing"
	"github.com/jonathan/unit-planner/internal/prompts"
	"github.com/jonathan/unit-planner/internal/schemas"
	"github.com/jonathan/unit-planner/internal/types"
	"go.uber.org/zap"
)

// Defaults used when Options leaves a field zero
const (
	DefaultMaxAttempts      = 3
	DefaultAttemptTimeout   = 90 * time.Second
	DefaultRetryDelay       = 1500 * time.Millisecond
	DefaultSectionMaxTokens = 4096
	DefaultOutlineMaxTokens = 2048
)

// Options configures a Generator
type Options struct {
	MaxAttempts      int
	AttemptTimeout   time.Duration
	RetryDelay       time.Duration
	SectionMaxTokens int
	OutlineMaxTokens int
	Tier             llm.ModelTier
	Logger           *zap.Logger
	Recorder         metrics.Recorder
	// Sleep waits between attempts; tests replace it
	Sleep func(context.Context, time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	// a negative delay disables the wait between attempts
	switch {
	case o.RetryDelay == 0:
		o.RetryDelay = DefaultRetryDelay
	case o.RetryDelay < 0:
		o.RetryDelay = 0
	}
	if o.SectionMaxTokens <= 0 {
		o.SectionMaxTokens = DefaultSectionMaxTokens
	}
	if o.OutlineMaxTokens <= 0 {
		o.OutlineMaxTokens = DefaultOutlineMaxTokens
	}
	if o.Tier == "" {
		o.Tier = llm.TierStandard
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	o.Recorder = metrics.OrNoop(o.Recorder)
	if o.Sleep == nil {
		o.Sleep = llm.SleepContext
	}
	return o
}

// Generator is the SectionGenerator for one run's input
type Generator struct {
	client llm.Client
	input  *types.GenerationInput
	opts   Options
}

// New creates a Generator; input is shared by every prompt it builds
func New(client llm.Client, input *types.GenerationInput, opts Options) *Generator {
	return &Generator{client: client, input: input, opts: opts.withDefaults()}
}

// Input returns the run input the generator builds prompts from
func (g *Generator) Input() *types.GenerationInput { return g.input }

// Options returns the effective options
func (g *Generator) Options() Options { return g.opts }

// Request describes one object to generate
type Request struct {
	// Label names the request in logs, errors and corrective prompts
	Label string
	// Metric is the metrics label (section type or "outline")
	Metric string
	// Schema is the embedded schema the object must satisfy
	Schema          string
	Prompt          string
	MaxOutputTokens int
	// Accept runs after schema validation; an error fails the attempt
	Accept func(obj map[string]any) error
}

// Correction is the input of a corrective attempt: what was asked, what came back, and why it failed
type Correction struct {
	OriginalTask   string
	OriginalPrompt string
	LastRawOutput  string
	LastError      error
}

// Prompt renders the corrective prompt for this correction
func (c Correction) Prompt(requiredKeys []string) (string, error) {
	msg := ""
	if c.LastError != nil {
		msg = c.LastError.Error()
	}
	return prompts.BuildCorrectivePrompt(prompts.CorrectiveData{
		Task:           c.OriginalTask,
		RequiredKeys:   requiredKeys,
		OriginalPrompt: c.OriginalPrompt,
		PreviousOutput: c.LastRawOutput,
		Error:          msg,
	})
}

// attemptResult is the outcome of one Drafting→Validating pass
type attemptResult struct {
	raw   string
	stage Stage
	err   error
}

// GenerateObject runs the attempt loop for req.
// Attempts are strictly sequential; attempt n>1 sends a corrective prompt built
// from attempt n-1. Cancellation of ctx is not observed mid-request.
func (g *Generator) GenerateObject(ctx context.Context, req Request) (map[string]any, error) {
	ctx = context.WithoutCancel(ctx)
	required := schemas.RequiredKeysOf(req.Schema)
	log := g.opts.Logger.With(zap.String("section", req.Label))

	prompt := req.Prompt
	var last attemptResult
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := g.opts.Sleep(ctx, g.opts.RetryDelay); err != nil {
				return nil, err
			}
			var err error
			prompt, err = Correction{
				OriginalTask:   req.Label,
				OriginalPrompt: req.Prompt,
				LastRawOutput:  last.raw,
				LastError:      last.err,
			}.Prompt(required)
			if err != nil {
				return nil, fmt.Errorf("failed to build corrective prompt: %w", err)
			}
		}

		started := time.Now()
		obj, res := g.attempt(ctx, prompt, req)
		g.opts.Recorder.ObserveAttempt(req.Metric, outcomeOf(res), time.Since(started))
		if res.err == nil {
			log.Debug("attempt succeeded", zap.Int("attempt", attempt))
			return obj, nil
		}

		log.Warn("attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.opts.MaxAttempts),
			zap.String("stage", string(res.stage)),
			zap.Error(res.err))
		last = res
	}

	g.opts.Recorder.IncSectionExhausted(req.Metric)
	return nil, &GenerationExhaustedError{
		Label:         req.Label,
		Attempts:      g.opts.MaxAttempts,
		LastStage:     last.stage,
		LastRawOutput: last.raw,
		LastError:     last.err,
	}
}

func (g *Generator) attempt(ctx context.Context, prompt string, req Request) (map[string]any, attemptResult) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.opts.AttemptTimeout)
	defer cancel()

	tokens := req.MaxOutputTokens
	if tokens <= 0 {
		tokens = g.opts.SectionMaxTokens
	}
	raw, err := g.client.Complete(attemptCtx, prompt, llm.Options{MaxOutputTokens: tokens, Tier: g.opts.Tier, JSON: true})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &llm.GenerationError{
				Message: fmt.Sprintf("attempt timed out after %s", g.opts.AttemptTimeout),
				Cause:   err,
			}
		}
		return nil, attemptResult{raw: raw, stage: StageDrafting, err: err}
	}

	extracted, err := parsing.ExtractJSON(raw)
	if err != nil {
		return nil, attemptResult{raw: raw, stage: StageExtracting, err: err}
	}
	obj, err := parsing.ParseJSON(extracted)
	if err != nil {
		return nil, attemptResult{raw: raw, stage: StageRepairing, err: err}
	}
	if err := schemas.ValidateObject(req.Schema, obj); err != nil {
		return nil, attemptResult{raw: raw, stage: StageValidating, err: err}
	}
	if req.Accept != nil {
		if err := req.Accept(obj); err != nil {
			return nil, attemptResult{raw: raw, stage: StageValidating, err: err}
		}
	}
	return obj, attemptResult{raw: raw}
}

func outcomeOf(res attemptResult) metrics.AttemptOutcome {
	if res.err == nil {
		return metrics.OutcomeSuccess
	}
	var (
		noJSON    *parsing.NoJSONFoundError
		invalid   *parsing.InvalidJSONError
		violation *schemas.SchemaViolationError
	)
	switch {
	case errors.Is(res.err, context.DeadlineExceeded):
		return metrics.OutcomeTimeout
	case errors.As(res.err, &noJSON):
		return metrics.OutcomeNoJSON
	case errors.As(res.err, &invalid):
		return metrics.OutcomeInvalidJSON
	case errors.As(res.err, &violation), res.stage == StageValidating:
		return metrics.OutcomeSchema
	default:
		return metrics.OutcomeTransport
	}
}
