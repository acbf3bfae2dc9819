package rendering

import (
	"bytes"
	"html/template"

	"github.com/jonathan/unit-planner/internal/types"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdown converts block bodies; raw HTML in generated text is omitted
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
table.ulp { width: 100%; border-collapse: collapse; font-family: Arial, sans-serif; font-size: 14px; border: 1px solid black; }
table.ulp th { border: 1px solid black; background-color: #d0d0d0; padding: 10px; text-align: left; }
table.ulp td { border: 1px solid black; padding: 10px; vertical-align: top; }
table.ulp tr.stage td { background-color: #f0f0f0; font-weight: bold; }
table.ulp td.focus { width: 40%; }
table.ulp td.experience { width: 60%; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table class="ulp">
<thead><tr><th>Learning Focus</th><th>Learning Experience</th></tr></thead>
<tbody>
{{- range .Rows}}
{{- if .Stage}}
<tr class="stage"><td colspan="2">{{.Stage}}</td></tr>
{{- else if .Full}}
<tr><td colspan="2">{{template "cell" .Full}}</td></tr>
{{- else}}
<tr><td class="focus">{{with .Focus}}{{template "cell" .}}{{end}}</td><td class="experience">{{with .Experience}}{{template "cell" .}}{{end}}</td></tr>
{{- end}}
{{- end}}
</tbody>
</table>
</body>
</html>
{{define "cell"}}<strong>{{.Heading}}</strong>
{{.Body}}{{end}}`

var page = template.Must(template.New("ulp").Parse(pageTemplate))

type htmlCell struct {
	Heading string
	Body    template.HTML
}

type htmlRow struct {
	Stage      string
	Full       *htmlCell
	Focus      *htmlCell
	Experience *htmlCell
}

// RenderHTML renders doc as a standalone HTML page with the two-column
// Learning Focus / Learning Experience table. Block bodies are converted from
// Markdown; headings are escaped.
func RenderHTML(doc *types.OutputDocument) ([]byte, error) {
	rows, err := buildRows(doc.Blocks)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = page.Execute(&buf, struct {
		Title string
		Rows  []htmlRow
	}{Title: doc.Title, Rows: rows})
	if err != nil {
		return nil, &TemplateError{Message: "failed to execute page template", Cause: err}
	}
	return buf.Bytes(), nil
}

// buildRows groups blocks into table rows. A stage header row precedes each
// run of blocks of one section type; a Learning Focus block shares its row
// with the Learning Experience block of the same competency that follows it.
func buildRows(blocks []types.Block) ([]htmlRow, error) {
	var rows []htmlRow
	var stage types.SectionType
	for i := 0; i < len(blocks); i++ {
		block := blocks[i]
		if block.Section != stage {
			stage = block.Section
			rows = append(rows, htmlRow{Stage: stageHeaders[stage]})
		}

		c, err := toCell(block)
		if err != nil {
			return nil, err
		}
		switch block.Column {
		case types.ColumnFocus:
			row := htmlRow{Focus: c}
			if i+1 < len(blocks) {
				next := blocks[i+1]
				if next.Column == types.ColumnExperience && next.Section == block.Section && next.Code == block.Code {
					if row.Experience, err = toCell(next); err != nil {
						return nil, err
					}
					i++
				}
			}
			rows = append(rows, row)
		case types.ColumnExperience:
			rows = append(rows, htmlRow{Experience: c})
		default:
			rows = append(rows, htmlRow{Full: c})
		}
	}
	return rows, nil
}

func toCell(block types.Block) (*htmlCell, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(block.Body), &buf); err != nil {
		return nil, &RenderError{Message: "failed to convert " + block.Heading, Cause: err}
	}
	return &htmlCell{Heading: block.Heading, Body: template.HTML(buf.String())}, nil //nolint:gosec // goldmark output with raw HTML disabled
}
