package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/unit-planner/internal/checkpoint"
	"github.com/jonathan/unit-planner/internal/types"
)

var renderCommand = &cobra.Command{
	Use:   "render",
	Short: "Render a stored or saved document as Markdown, HTML or JSON",
	Long: `Renders a completed run's document again without any generation calls.
The document comes from the checkpoint store (--run) or a JSON file written by "run --format json" (--doc).`,
	Args: cobra.NoArgs,
	RunE: runRenderCmd,
}

var (
	renderRunID  string
	renderDoc    string
	renderFormat string
	renderOut    string
)

func init() {
	renderCommand.Flags().StringVar(&renderRunID, "run", "", "Run ID whose stored document to render")
	renderCommand.Flags().StringVar(&renderDoc, "doc", "", "Path to a document JSON file")
	renderCommand.Flags().StringVarP(&renderFormat, "format", "f", "html", "Output format: markdown, html or json")
	renderCommand.Flags().StringVarP(&renderOut, "out", "o", "", "Output file (defaults to stdout)")
	renderCommand.MarkFlagsMutuallyExclusive("run", "doc")
	renderCommand.MarkFlagsOneRequired("run", "doc")

	rootCmd.AddCommand(renderCommand)
}

func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// loadDocumentFile reads a document JSON file
func loadDocumentFile(path string) (*types.OutputDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc types.OutputDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document JSON: %w", err)
	}
	return &doc, nil
}

func runRenderCmd(_ *cobra.Command, _ []string) error {
	formats, err := parseFormats(renderFormat)
	if err != nil {
		return err
	}
	if len(formats) != 1 {
		return fmt.Errorf("render takes exactly one format")
	}

	var doc *types.OutputDocument
	if renderDoc != "" {
		doc, err = loadDocumentFile(renderDoc)
		if err != nil {
			return err
		}
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := checkpoint.Open(cfg.CheckpointPath)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer func() { _ = store.Close() }()

		doc, err = store.GetDocument(context.Background(), renderRunID)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("no document stored for run %s", renderRunID)
		}
	}

	data, err := renderDocument(doc, formats[0])
	if err != nil {
		return err
	}
	if renderOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(renderOut, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Printf("Successfully rendered document to %s\n", renderOut)
	return nil
}
