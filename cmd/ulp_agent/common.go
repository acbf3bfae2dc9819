package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/unit-planner/internal/config"
	"github.com/jonathan/unit-planner/internal/generation"
	"github.com/jonathan/unit-planner/internal/ingestion"
	"github.com/jonathan/unit-planner/internal/llm"
	"github.com/jonathan/unit-planner/internal/metrics"
	"github.com/jonathan/unit-planner/internal/outline"
	"github.com/jonathan/unit-planner/internal/pipeline"
	"github.com/jonathan/unit-planner/internal/rendering"
	"github.com/jonathan/unit-planner/internal/types"
)

// loadConfig reads the optional config file, fills the rest from the
// environment and defaults, and validates the result.
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if rootConfigPath != "" {
		loaded, err := config.LoadConfig(rootConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
		if rootVerbose {
			_, _ = fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", rootConfigPath)
		}
	}
	if rootVerbose {
		cfg.Verbose = true
	}

	cfg.ApplyEnv()
	cfg = cfg.MergeWithDefaults(config.Defaults())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newLogger returns a development logger in verbose mode and a warn-level
// production logger otherwise.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return zc.Build()
}

// newClient builds the generation client chain: Gemini, transport backoff,
// then the monthly quota guard.
func newClient(ctx context.Context, cfg *config.Config, usage llm.UsageStore, logger *zap.Logger, recorder metrics.Recorder) (llm.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s environment variable or api_key config is required", config.EnvAPIKey)
	}
	base, err := llm.NewClient(ctx, cfg.ModelConfig(), cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	retrying := llm.NewRetryingClient(base, cfg.RetryPolicy(),
		llm.WithRetryLogger(logger),
		llm.WithRetryRecorder(recorder),
	)
	return llm.NewQuotaGuard(retrying, usage, cfg.MonthlyLimit, logger, recorder), nil
}

// runDeps are shared by every run a command executes
type runDeps struct {
	cfg          *config.Config
	client       llm.Client
	checkpointer pipeline.Checkpointer
	logger       *zap.Logger
	recorder     metrics.Recorder
}

func (d *runDeps) components(in types.GenerationInput) (*generation.Generator, *outline.Decomposer) {
	opts := d.cfg.GenerationOptions()
	opts.Logger = d.logger
	opts.Recorder = d.recorder
	gen := generation.New(d.client, &in, opts)
	return gen, outline.NewDecomposer(gen)
}

func (d *runDeps) pipelineOptions(label string, onPlanned pipeline.PlanCallback) pipeline.Options {
	return pipeline.Options{
		Checkpointer:    d.checkpointer,
		ContextMaxBytes: d.cfg.ContextMaxBytes,
		Logger:          d.logger,
		Recorder:        d.recorder,
		OnPlanned:       onPlanned,
		OnProgress: func(event pipeline.ProgressEvent) {
			fmt.Printf("  %s[%d/%d] %s\n", label, event.Completed, event.Total, event.Task)
		},
	}
}

// execute runs a fresh state and resumes any other
func execute(ctx context.Context, orch *pipeline.Orchestrator) (*types.OutputDocument, error) {
	if orch.State().Status == types.RunIdle {
		return orch.Run(ctx)
	}
	return orch.Resume(ctx)
}

// describeStop turns a run failure into the message shown to the user
func describeStop(runID string, err error) error {
	var (
		paused  *pipeline.PausedError
		aborted *pipeline.AbortedError
	)
	switch {
	case errors.As(err, &paused):
		return fmt.Errorf("run %s paused at task %d/%d (%s): %w\nResume with: ulp_agent resume %s",
			runID, paused.AtTask+1, paused.State.TotalTasks, paused.Task, paused.Cause, runID)
	case errors.As(err, &aborted):
		return fmt.Errorf("run %s aborted: %w", runID, aborted.Cause)
	default:
		return fmt.Errorf("run %s failed: %w", runID, err)
	}
}

// parseFormats splits a comma-separated format list
func parseFormats(raw string) ([]string, error) {
	var formats []string
	seen := make(map[string]bool)
	for _, f := range strings.Split(raw, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "md" {
			f = "markdown"
		}
		switch f {
		case "":
			continue
		case "markdown", "html", "json":
		default:
			return nil, fmt.Errorf("unknown output format %q (want markdown, html or json)", f)
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("at least one output format is required")
	}
	return formats, nil
}

var formatExt = map[string]string{
	"markdown": ".md",
	"html":     ".html",
	"json":     ".json",
}

// renderDocument renders doc in one of the supported formats
func renderDocument(doc *types.OutputDocument, format string) ([]byte, error) {
	switch format {
	case "markdown":
		return []byte(rendering.RenderMarkdown(doc)), nil
	case "html":
		return rendering.RenderHTML(doc)
	case "json":
		return marshalIndent(doc)
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// writeOutputs writes doc to dir as ulp-<runID>.<ext> for each format and returns the paths
func writeOutputs(dir, runID string, doc *types.OutputDocument, formats []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	var paths []string
	for _, format := range formats {
		data, err := renderDocument(doc, format)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, "ulp-"+runID+formatExt[format])
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// writeMetadata records where a run's input came from as ulp-<runID>.meta.json
func writeMetadata(dir, runID string, meta *ingestion.Metadata) (string, error) {
	data, err := meta.ToJSON()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "ulp-"+runID+".meta.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
