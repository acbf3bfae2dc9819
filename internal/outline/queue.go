package outline

import "github.com/jonathan/unit-planner/internal/types"

// BuildQueue orders the section tasks of one run: explore, one firmUp per
// Acquisition item, one deepen per Meaning-Making item, one transfer per
// Transfer item, then synthesis, performanceTask and values. Items keep their
// relative order within a category.
func BuildQueue(items []types.CompetencyItem) []types.SectionTask {
	queue := []types.SectionTask{{Type: types.SectionExplore}}
	for _, category := range types.Categories {
		for _, item := range items {
			if item.Category != category {
				continue
			}
			c := item
			queue = append(queue, types.SectionTask{Type: category.SectionType(), Competency: &c})
		}
	}
	return append(queue,
		types.SectionTask{Type: types.SectionSynthesis},
		types.SectionTask{Type: types.SectionPerformanceTask},
		types.SectionTask{Type: types.SectionValues},
	)
}
