package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/unit-planner/internal/checkpoint"
	"github.com/jonathan/unit-planner/internal/observability"
)

var runsCommand = &cobra.Command{
	Use:   "runs",
	Short: "List runs stored in the local checkpoint file",
	Args:  cobra.NoArgs,
	RunE:  runListCmd,
}

var runsJSON bool

func init() {
	runsCommand.Flags().BoolVar(&runsJSON, "json", false, "Print the list as JSON")
	rootCmd.AddCommand(runsCommand)
}

func runListCmd(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := checkpoint.Open(cfg.CheckpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(context.Background())
	if err != nil {
		return err
	}
	if runsJSON {
		data, err := marshalIndent(runs)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	observability.NewPrinter(os.Stdout).PrintRuns(runs)
	return nil
}
