package rendering

import (
	"strings"

	"github.com/jonathan/unit-planner/internal/types"
)

// stageHeaders title each run of blocks from the same section type
var stageHeaders = map[types.SectionType]string{
	types.SectionExplore:         "EXPLORE",
	types.SectionFirmUp:          "FIRM-UP (ACQUISITION)",
	types.SectionDeepen:          "DEEPEN (MEANING-MAKING)",
	types.SectionTransfer:        "TRANSFER (APPLICATION)",
	types.SectionSynthesis:       "SYNTHESIS",
	types.SectionPerformanceTask: "PERFORMANCE TASK (GRASPS)",
	types.SectionValues:          "VALUES INTEGRATION",
}

// RenderMarkdown renders doc as a single Markdown document
func RenderMarkdown(doc *types.OutputDocument) string {
	var sb strings.Builder
	sb.WriteString("# ")
	sb.WriteString(EscapeMarkdown(doc.Title))
	sb.WriteString("\n")

	var stage types.SectionType
	for _, block := range doc.Blocks {
		if block.Section != stage {
			stage = block.Section
			sb.WriteString("\n## ")
			sb.WriteString(stageHeaders[stage])
			sb.WriteString("\n")
		}
		sb.WriteString("\n### ")
		sb.WriteString(EscapeMarkdown(block.Heading))
		sb.WriteString("\n")
		if block.Body != "" {
			sb.WriteString("\n")
			sb.WriteString(block.Body)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
