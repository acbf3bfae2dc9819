// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/unit-planner/internal/checkpoint"
	"github.com/jonathan/unit-planner/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintInput outputs a summary of the run input.
func (p *Printer) PrintInput(in *types.GenerationInput) {
	if in == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:     %s\n", in.DocumentTitle()))
	sb.WriteString(fmt.Sprintf("Language:  %s\n", in.Language.DisplayName()))
	sb.WriteString(fmt.Sprintf("Content:   %s\n", in.ContentStandard))
	sb.WriteString(fmt.Sprintf("Perform:   %s\n", in.PerformanceStandard))

	if len(in.SourceTitles) > 0 {
		sb.WriteString("\nSources:\n")
		count := min(len(in.SourceTitles), maxItemsToShow)
		for _, title := range in.SourceTitles[:count] {
			sb.WriteString(fmt.Sprintf("  %s\n", title))
		}
		if len(in.SourceTitles) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(in.SourceTitles)-maxItemsToShow))
		}
	}

	p.printBox("RUN INPUT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintOutline outputs the classified competencies grouped by stage.
func (p *Printer) PrintOutline(items []types.CompetencyItem) {
	if len(items) == 0 {
		return
	}

	labels := map[types.Category]string{
		types.CategoryAcquisition:   "Acquisition",
		types.CategoryMeaningMaking: "Meaning-Making",
		types.CategoryTransfer:      "Transfer",
	}

	var sb strings.Builder
	for i, category := range types.Categories {
		var group []types.CompetencyItem
		for _, item := range items {
			if item.Category == category {
				group = append(group, item)
			}
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s (%d)\n", labels[category], len(group)))
		for _, item := range group {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", item.Code, item.Text))
		}
	}

	p.printBox("COMPETENCY OUTLINE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintState outputs where a stopped run stands and what it will do next.
func (p *Printer) PrintState(state *types.PipelineState) {
	if state == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:       %s\n", state.RunID))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", state.Status))
	sb.WriteString(fmt.Sprintf("Progress:  %d/%d\n", len(state.Completed), state.TotalTasks))
	if state.LastError != "" {
		sb.WriteString(fmt.Sprintf("Error:     %s\n", state.LastError))
	}

	if len(state.Remaining) > 0 {
		sb.WriteString("\nRemaining:\n")
		count := min(len(state.Remaining), maxItemsToShow)
		for _, task := range state.Remaining[:count] {
			sb.WriteString(fmt.Sprintf("  %s\n", task))
		}
		if len(state.Remaining) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(state.Remaining)-maxItemsToShow))
		}
	}

	p.printBox("RUN STATE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRuns outputs stored runs, most recent first.
func (p *Printer) PrintRuns(runs []checkpoint.Summary) {
	if len(runs) == 0 {
		p.printBox("STORED RUNS", "No runs found")
		return
	}

	var sb strings.Builder
	for i, run := range runs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s  %s\n", run.RunID, run.Status))
		sb.WriteString(fmt.Sprintf("  %s (%d/%d) %s\n",
			run.UnitTitle, run.Completed, run.TotalTasks, run.UpdatedAt.Format("2006-01-02 15:04")))
	}

	p.printBox("STORED RUNS", strings.TrimSuffix(sb.String(), "\n"))
}
