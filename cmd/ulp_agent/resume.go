package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/unit-planner/internal/observability"
	"github.com/jonathan/unit-planner/internal/pipeline"
	"github.com/jonathan/unit-planner/internal/types"
)

var resumeCommand = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Continue a paused or aborted run from its checkpoint",
	Long: `Loads the run's checkpoint and generates only the sections that are still missing.
Without a run ID the most recently updated resumable run is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResumeCmd,
}

var (
	resumeFormats string
	resumeOutDir  string
)

func init() {
	resumeCommand.Flags().StringVarP(&resumeFormats, "format", "f", "markdown,html", "Comma-separated output formats: markdown, html, json")
	resumeCommand.Flags().StringVarP(&resumeOutDir, "out", "o", "", "Output directory (defaults to output_dir config)")

	rootCmd.AddCommand(resumeCommand)
}

func runResumeCmd(cmd *cobra.Command, args []string) error {
	formats, err := parseFormats(resumeFormats)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, store, cleanup, err := openCLI(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	if cmd.Flags().Changed("out") {
		deps.cfg.OutputDir = resumeOutDir
	}

	// Step 1: Find the checkpoint
	fmt.Println("Step 1/3: Loading checkpoint...")
	var state *types.PipelineState
	if len(args) == 1 {
		state, err = store.LoadCheckpoint(ctx, args[0])
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("run not found: %s", args[0])
		}
	} else {
		state, err = store.LatestResumable(ctx)
		if err != nil {
			return err
		}
		if state == nil {
			return fmt.Errorf("no paused or aborted runs to resume")
		}
	}
	if state.Status == types.RunCompleted {
		return &pipeline.StatusError{Op: "resume", Status: state.Status}
	}
	if deps.cfg.Verbose {
		observability.NewPrinter(os.Stdout).PrintState(state)
	}
	fmt.Printf("  Run %s: %d/%d sections done\n", state.RunID, len(state.Completed), state.TotalTasks)

	// Step 2: Generate the remaining sections
	fmt.Println("Step 2/3: Generating remaining sections...")
	gen, dec := deps.components(state.Input)
	orch, err := pipeline.FromState(gen, dec, state, deps.pipelineOptions("", nil))
	if err != nil {
		return err
	}
	doc, err := execute(ctx, orch)
	if err != nil {
		return describeStop(state.RunID, err)
	}
	if err := store.SaveDocument(ctx, state.RunID, doc); err != nil {
		deps.logger.Warn("failed to store document", zap.String("run_id", state.RunID), zap.Error(err))
	}

	// Step 3: Write the document
	fmt.Println("Step 3/3: Writing documents...")
	paths, err := writeOutputs(deps.cfg.OutputDir, state.RunID, doc, formats)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Printf("  %s\n", p)
	}
	fmt.Printf("\nRun %s completed\n", state.RunID)
	return nil
}
