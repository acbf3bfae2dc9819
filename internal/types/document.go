package types

// Column places a block in the two-column document layout
type Column string

const (
	// ColumnFull spans both columns (stage headers, unit overview)
	ColumnFull Column = "full"
	// ColumnFocus is the "Learning Focus" column
	ColumnFocus Column = "focus"
	// ColumnExperience is the "Learning Experience" column
	ColumnExperience Column = "experience"
)

// Block is one rendered (heading, body) pair of the output document.
// Heading is plain text.
// Body is Markdown.
type Block struct {
	Section SectionType `json:"section"`
	Code    string      `json:"code,omitempty"`
	Column  Column      `json:"column"`
	Heading string      `json:"heading"`
	Body    string      `json:"body"`
}

// OutputDocument is the assembled, read-only result of a completed run
type OutputDocument struct {
	Title  string  `json:"title"`
	Blocks []Block `json:"blocks"`
}
