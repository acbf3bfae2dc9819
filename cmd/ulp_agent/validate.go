package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/unit-planner/internal/ingestion"
)

var validateCommand = &cobra.Command{
	Use:   "validate <input.json|input.yaml>...",
	Short: "Check input files without generating anything",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidateCmd,
}

func init() {
	rootCmd.AddCommand(validateCommand)
}

func runValidateCmd(_ *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		in, meta, err := ingestion.LoadInput(path)
		if err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", path, err)
			continue
		}
		competencies := ingestion.SplitCompetencies(in.CompetenciesRaw)
		fmt.Printf("✓ %s: %q, %d competencies, %s (sha256 %s)\n",
			path, in.DocumentTitle(), len(competencies), in.Language.DisplayName(), meta.Hash[:12])
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d input(s) invalid", failed, len(args))
	}
	return nil
}
