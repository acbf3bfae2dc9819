package parsing

import "fmt"

// NoJSONFoundError is returned when model output contains nothing that looks like JSON
type NoJSONFoundError struct {
	// Excerpt is the beginning of the offending text
	Excerpt string
}

func (e *NoJSONFoundError) Error() string {
	if e.Excerpt == "" {
		return "no JSON found in response: response is empty"
	}
	return fmt.Sprintf("no JSON found in response starting with %q", e.Excerpt)
}

// InvalidJSONError is returned when no repair pass produced parseable JSON.
// Message is the strict parser's message for the unrepaired text.
type InvalidJSONError struct {
	Message string
	// Applied lists the repair passes that changed the text before giving up
	Applied []string
	Cause   error
}

func (e *InvalidJSONError) Error() string {
	return fmt.Sprintf("invalid JSON: %s", e.Message)
}

func (e *InvalidJSONError) Unwrap() error {
	return e.Cause
}
