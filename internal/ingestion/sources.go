package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/unit-planner/internal/fetch"
	"github.com/jonathan/unit-planner/internal/types"
)

// UnitSource is one source unit and its lesson titles
type UnitSource struct {
	Title   string   `json:"title"`
	Lessons []string `json:"lessons"`
}

// lessonTitleSelectors are tried in order; the first that matches inside the
// content area supplies the lesson titles.
var lessonTitleSelectors = []string{".lesson-title", "h2", "h3"}

// UnitFromHTML reads a unit page: the first h1 (or the document title) names the
// unit, and lesson headings inside the main content area name its lessons.
func UnitFromHTML(html string) (*UnitSource, error) {
	page, err := fetch.ParsePage(html)
	if err != nil {
		return nil, err
	}

	unit := &UnitSource{Title: headingText(page.Find("h1").First())}
	if unit.Title == "" {
		unit.Title = headingText(page.Find("title").First())
	}

	content := page.Content()
	seen := make(map[string]bool)
	for _, selector := range lessonTitleSelectors {
		content.Find(selector).Each(func(_ int, s *goquery.Selection) {
			title := headingText(s)
			if title == "" || title == unit.Title || seen[title] {
				return
			}
			seen[title] = true
			unit.Lessons = append(unit.Lessons, title)
		})
		if len(unit.Lessons) > 0 {
			break
		}
	}

	if unit.Title == "" && len(unit.Lessons) == 0 {
		return nil, fmt.Errorf("no unit or lesson headings found")
	}
	return unit, nil
}

// FetchUnit downloads a unit page and reads its headings
func FetchUnit(ctx context.Context, url string, opts *fetch.Options) (*UnitSource, error) {
	result, err := fetch.URL(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	unit, err := UnitFromHTML(result.HTML)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return unit, nil
}

// FormatSourceTitles renders units as the prompt's lesson list ("Unit: X"
// followed by "- lesson" lines) and joins the unit titles with " & ".
func FormatSourceTitles(units []UnitSource) (string, []string) {
	var (
		names []string
		lines []string
	)
	for _, u := range units {
		if u.Title != "" {
			names = append(names, u.Title)
			lines = append(lines, "Unit: "+u.Title)
		}
		for _, lesson := range u.Lessons {
			lines = append(lines, "- "+lesson)
		}
	}
	return strings.Join(names, " & "), lines
}

// ApplySources replaces the input's source titles with the formatted units.
// UnitTitle is only set when the input has none.
func ApplySources(in *types.GenerationInput, units []UnitSource) {
	title, lines := FormatSourceTitles(units)
	in.SourceTitles = lines
	if in.UnitTitle == "" {
		in.UnitTitle = title
	}
}

func headingText(s *goquery.Selection) string {
	return NormalizeText(strings.Join(strings.Fields(s.Text()), " "))
}
