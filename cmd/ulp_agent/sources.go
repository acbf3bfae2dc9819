package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/unit-planner/internal/fetch"
	"github.com/jonathan/unit-planner/internal/ingestion"
)

var sourcesCommand = &cobra.Command{
	Use:   "sources <url>...",
	Short: "Print the unit and lesson titles read from unit pages",
	Long: `Fetches each unit page and prints the "unit_title" and "source_titles" values
a run would use, as JSON ready to paste into an input file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSourcesCmd,
}

var sourcesTimeout time.Duration

func init() {
	sourcesCommand.Flags().DurationVar(&sourcesTimeout, "timeout", fetch.DefaultTimeout, "Timeout per page")
	rootCmd.AddCommand(sourcesCommand)
}

func runSourcesCmd(_ *cobra.Command, args []string) error {
	opts := fetch.DefaultOptions()
	opts.Timeout = sourcesTimeout

	units := make([]ingestion.UnitSource, 0, len(args))
	for _, u := range args {
		unit, err := ingestion.FetchUnit(context.Background(), u, opts)
		if err != nil {
			return err
		}
		units = append(units, *unit)
	}

	title, lines := ingestion.FormatSourceTitles(units)
	data, err := marshalIndent(map[string]any{
		"unit_title":    title,
		"source_titles": lines,
	})
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
