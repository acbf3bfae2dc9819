package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/unit-planner/internal/checkpoint"
	"github.com/jonathan/unit-planner/internal/fetch"
	"github.com/jonathan/unit-planner/internal/ingestion"
	"github.com/jonathan/unit-planner/internal/metrics"
	"github.com/jonathan/unit-planner/internal/observability"
	"github.com/jonathan/unit-planner/internal/pipeline"
	"github.com/jonathan/unit-planner/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run <input.json|input.yaml>...",
	Short: "Generate a Unit Learning Plan for each input file",
	Long: `Runs the full pipeline for each input: outline the competencies, generate every
section in order with the accumulated context, assemble and write the document.

A run that fails after all attempts pauses with its progress checkpointed; continue it
with "ulp_agent resume <run-id>".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPipelineCmd,
}

var (
	runURLs     []string
	runFormats  string
	runOutDir   string
	runParallel int
)

func init() {
	runCommand.Flags().StringSliceVar(&runURLs, "url", nil, "Unit page URL to read the unit and lesson titles from (repeatable)")
	runCommand.Flags().StringVarP(&runFormats, "format", "f", "markdown,html", "Comma-separated output formats: markdown, html, json")
	runCommand.Flags().StringVarP(&runOutDir, "out", "o", "", "Output directory (defaults to output_dir config)")
	runCommand.Flags().IntVar(&runParallel, "parallel", 2, "Maximum number of inputs generated at once")

	rootCmd.AddCommand(runCommand)
}

// openCLI loads configuration and opens everything a local run needs
func openCLI(ctx context.Context) (*runDeps, *checkpoint.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	store, err := checkpoint.Open(cfg.CheckpointPath)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	recorder := metrics.NoopRecorder{}
	client, err := newClient(ctx, cfg, store, logger, recorder)
	if err != nil {
		_ = store.Close()
		_ = logger.Sync()
		return nil, nil, nil, err
	}

	deps := &runDeps{cfg: cfg, client: client, checkpointer: store, logger: logger, recorder: recorder}
	cleanup := func() {
		_ = client.Close()
		_ = store.Close()
		_ = logger.Sync()
	}
	return deps, store, cleanup, nil
}

func runPipelineCmd(cmd *cobra.Command, args []string) error {
	formats, err := parseFormats(runFormats)
	if err != nil {
		return err
	}
	if runParallel < 1 {
		return fmt.Errorf("--parallel must be at least 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 1: Load and validate every input before spending any generation calls
	fmt.Printf("Step 1/4: Loading %d input(s)...\n", len(args))
	inputs := make([]*types.GenerationInput, len(args))
	metas := make([]*ingestion.Metadata, len(args))
	for i, path := range args {
		in, meta, err := ingestion.LoadInput(path)
		if err != nil {
			return err
		}
		inputs[i], metas[i] = in, meta
	}

	deps, store, cleanup, err := openCLI(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if cmd.Flags().Changed("out") {
		deps.cfg.OutputDir = runOutDir
	}

	// Step 2: Read unit and lesson titles from the given pages
	if len(runURLs) > 0 {
		fmt.Printf("Step 2/4: Reading %d unit page(s)...\n", len(runURLs))
		units := make([]ingestion.UnitSource, 0, len(runURLs))
		for _, u := range runURLs {
			unit, err := ingestion.FetchUnit(ctx, u, fetch.DefaultOptions())
			if err != nil {
				return err
			}
			units = append(units, *unit)
		}
		for i, in := range inputs {
			ingestion.ApplySources(in, units)
			metas[i].SourceTitles = in.SourceTitles
		}
	} else {
		fmt.Println("Step 2/4: Using source titles from input")
	}

	// Step 3: Generate each document
	fmt.Println("Step 3/4: Generating sections...")
	printer := observability.NewPrinter(os.Stdout)
	results := make([]*types.OutputDocument, len(inputs))
	runIDs := make([]string, len(inputs))

	var g errgroup.Group
	g.SetLimit(runParallel)
	for i, in := range inputs {
		label := ""
		if len(inputs) > 1 {
			label = fmt.Sprintf("%s ", args[i])
		}
		if deps.cfg.Verbose {
			printer.PrintInput(in)
		}
		gen, dec := deps.components(*in)
		var onPlanned pipeline.PlanCallback
		if deps.cfg.Verbose {
			onPlanned = func(state *types.PipelineState) { printer.PrintOutline(state.Competencies) }
		}
		orch := pipeline.New(gen, dec, *in, deps.pipelineOptions(label, onPlanned))
		runIDs[i] = orch.RunID()

		g.Go(func() error {
			doc, err := execute(ctx, orch)
			if err != nil {
				deps.logger.Warn("run stopped", zap.String("run_id", runIDs[i]), zap.Error(err))
				return describeStop(runIDs[i], err)
			}
			results[i] = doc
			if err := store.SaveDocument(ctx, runIDs[i], doc); err != nil {
				deps.logger.Warn("failed to store document", zap.String("run_id", runIDs[i]), zap.Error(err))
			}
			return nil
		})
	}
	runErr := g.Wait()

	// Step 4: Write whatever completed, even when another input stopped
	fmt.Println("Step 4/4: Writing documents...")
	for i, doc := range results {
		if doc == nil {
			continue
		}
		paths, err := writeOutputs(deps.cfg.OutputDir, runIDs[i], doc, formats)
		if err != nil {
			return err
		}
		metaPath, err := writeMetadata(deps.cfg.OutputDir, runIDs[i], metas[i])
		if err != nil {
			return err
		}
		for _, p := range append(paths, metaPath) {
			fmt.Printf("  %s -> %s\n", args[i], p)
		}
	}

	if runErr != nil {
		return runErr
	}
	fmt.Printf("\nCompleted %d run(s)\n", len(inputs))
	return nil
}
