package rendering

import (
	"fmt"
	"strings"

	"github.com/jonathan/unit-planner/internal/types"
)

// blockRenderer turns one validated section into its ordered blocks
type blockRenderer func(types.SectionResult) []types.Block

var renderers = map[types.SectionType]blockRenderer{
	types.SectionExplore:         renderExplore,
	types.SectionFirmUp:          renderCompetency,
	types.SectionDeepen:          renderCompetency,
	types.SectionTransfer:        renderCompetency,
	types.SectionSynthesis:       renderSynthesis,
	types.SectionPerformanceTask: renderPerformanceTask,
	types.SectionValues:          renderValues,
}

// stageNames label competency sections in the Learning Focus column
var stageNames = map[types.SectionType]string{
	types.SectionFirmUp:   "Acquisition",
	types.SectionDeepen:   "Meaning-Making",
	types.SectionTransfer: "Transfer",
}

// Assemble builds the output document from results, keeping their order.
// Section types with no results produce no blocks. The output depends only on
// the arguments.
func Assemble(title string, results []types.SectionResult) *types.OutputDocument {
	doc := &types.OutputDocument{Title: title, Blocks: []types.Block{}}
	for _, r := range results {
		r = types.ValueOf(r)
		if r == nil {
			continue
		}
		render, ok := renderers[r.SectionType()]
		if !ok {
			continue
		}
		doc.Blocks = append(doc.Blocks, render(r)...)
	}
	return doc
}

func renderExplore(r types.SectionResult) []types.Block {
	s, ok := r.(types.ExploreSection)
	if !ok {
		return nil
	}
	var b mdBuilder
	b.field("Unit Overview", s.UnitOverview.String())
	b.field("Lessons", s.LessonsList.String())
	b.list("Essential Questions", s.EssentialQuestions)
	b.field("Map of Conceptual Change", s.MapOfConceptualChange.String())
	b.field("Hook Activity", s.HookedActivities.String())
	return []types.Block{{
		Section: types.SectionExplore,
		Column:  types.ColumnFull,
		Heading: "Explore",
		Body:    b.String(),
	}}
}

func renderCompetency(r types.SectionResult) []types.Block {
	fields, _ := types.CompetencyOf(r)
	section := r.SectionType()

	var focus mdBuilder
	focus.paragraph(fields.Competency.String())
	focus.list("Learning Targets", fields.LearningTargets)
	focus.list("Success Indicators", fields.SuccessIndicators)

	var exp mdBuilder
	exp.activity("In-Person Activity", fields.InPersonActivity)
	exp.activity("Online Activity", fields.OnlineActivity)
	switch s := r.(type) {
	case types.FirmUpSection:
		exp.field("Processing/Discussion", s.SupportDiscussion.String())
		exp.assessment(s.Assessment)
		exp.field("Templates", s.Templates.String())
	case types.DeepenSection:
		exp.field("Processing/Discussion", s.SupportDiscussion.String())
		exp.assessment(s.Assessment)
		exp.field("Templates", s.Templates.String())
	}

	return []types.Block{
		{
			Section: section,
			Code:    fields.Code,
			Column:  types.ColumnFocus,
			Heading: fmt.Sprintf("%s - %s", stageNames[section], fields.Code),
			Body:    focus.String(),
		},
		{
			Section: section,
			Code:    fields.Code,
			Column:  types.ColumnExperience,
			Heading: "Learning Experience - " + fields.Code,
			Body:    exp.String(),
		},
	}
}

func renderSynthesis(r types.SectionResult) []types.Block {
	s, ok := r.(types.SynthesisSection)
	if !ok {
		return nil
	}
	var b mdBuilder
	b.paragraph(s.Summary.String())
	return []types.Block{{
		Section: types.SectionSynthesis,
		Column:  types.ColumnFull,
		Heading: "Synthesis",
		Body:    b.String(),
	}}
}

func renderPerformanceTask(r types.SectionResult) []types.Block {
	s, ok := r.(types.PerformanceTaskSection)
	if !ok {
		return nil
	}
	g := s.GraspsTask
	var b mdBuilder
	b.field("Goal", g.Goal)
	b.field("Role", g.Role)
	b.field("Audience", g.Audience)
	b.field("Situation", g.Situation)
	b.field("Product", g.Product)
	b.field("Standards", g.Standards)
	if len(s.Rubric) > 0 {
		var t strings.Builder
		t.WriteString("| Criteria | Description | Points |\n| --- | --- | --- |")
		for _, c := range s.Rubric {
			fmt.Fprintf(&t, "\n| %s | %s | %s |", EscapeMarkdown(c.Criteria), EscapeMarkdown(c.Description), EscapeMarkdown(c.Points))
		}
		b.paragraph("**Rubric:**")
		b.paragraph(t.String())
	}
	return []types.Block{{
		Section: types.SectionPerformanceTask,
		Column:  types.ColumnFull,
		Heading: "Performance Task (GRASPS)",
		Body:    b.String(),
	}}
}

func renderValues(r types.SectionResult) []types.Block {
	s, ok := r.(types.ValuesSection)
	if !ok {
		return nil
	}
	var b mdBuilder
	for _, v := range s.Values {
		switch {
		case v.Name == "":
			b.paragraph(v.Description)
		case v.Description == "":
			b.paragraph(fmt.Sprintf("**%s**", EscapeMarkdown(v.Name)))
		default:
			b.paragraph(fmt.Sprintf("**%s:** %s", EscapeMarkdown(v.Name), v.Description))
		}
	}
	return []types.Block{{
		Section: types.SectionValues,
		Column:  types.ColumnFull,
		Heading: "Values Integration",
		Body:    b.String(),
	}}
}

// mdBuilder collects Markdown paragraphs, skipping empty content
type mdBuilder struct {
	parts []string
}

func (b *mdBuilder) paragraph(text string) {
	if text = strings.TrimSpace(text); text != "" {
		b.parts = append(b.parts, text)
	}
}

func (b *mdBuilder) field(label, text string) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
	case strings.Contains(text, "\n"):
		b.parts = append(b.parts, fmt.Sprintf("**%s:**", label), text)
	default:
		b.parts = append(b.parts, fmt.Sprintf("**%s:** %s", label, text))
	}
}

func (b *mdBuilder) list(label string, items []string) {
	var lines []string
	for _, item := range items {
		item = strings.Join(strings.Fields(item), " ")
		if item != "" {
			lines = append(lines, "- "+item)
		}
	}
	if len(lines) == 0 {
		return
	}
	b.parts = append(b.parts, fmt.Sprintf("**%s:**", label), strings.Join(lines, "\n"))
}

func (b *mdBuilder) activity(label string, a types.Activity) {
	b.field(label, a.Instructions)
	if m := strings.TrimSpace(a.Materials); m != "" {
		b.parts = append(b.parts, "*Materials:* "+strings.Join(strings.Fields(m), " "))
	}
}

func (b *mdBuilder) assessment(a types.Assessment) {
	label := "Assessment"
	if t := strings.TrimSpace(a.Type); t != "" {
		label = fmt.Sprintf("Assessment (%s)", EscapeMarkdown(t))
	}
	b.field(label, a.Content)
}

func (b *mdBuilder) String() string {
	return strings.Join(b.parts, "\n\n")
}
