// Package metrics provides observability hooks for generation runs.
//
// Components receive a Recorder and default to NoopRecorder, so metrics are
// optional everywhere. The server swaps in a PrometheusRecorder.
package metrics

import "time"

// AttemptOutcome labels the result of one generation attempt
type AttemptOutcome string

const (
	OutcomeSuccess     AttemptOutcome = "success"
	OutcomeNoJSON      AttemptOutcome = "no_json"
	OutcomeInvalidJSON AttemptOutcome = "invalid_json"
	OutcomeSchema      AttemptOutcome = "schema_violation"
	OutcomeTransport   AttemptOutcome = "transport"
	OutcomeTimeout     AttemptOutcome = "timeout"
)

// Recorder defines observability hooks for runs, sections and generation calls.
type Recorder interface {
	ObserveAttempt(section string, outcome AttemptOutcome, d time.Duration)
	IncSectionCompleted(section string)
	IncSectionExhausted(section string)
	IncTransportRetry(status int)
	IncQuotaRejected()
	IncRunOutcome(outcome string) // outcome: completed|paused|aborted|failed
	ObserveRunDuration(d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveAttempt(string, AttemptOutcome, time.Duration) {}
func (NoopRecorder) IncSectionCompleted(string)                           {}
func (NoopRecorder) IncSectionExhausted(string)                           {}
func (NoopRecorder) IncTransportRetry(int)                                {}
func (NoopRecorder) IncQuotaRejected()                                    {}
func (NoopRecorder) IncRunOutcome(string)                                 {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                     {}

// OrNoop returns r, or a NoopRecorder when r is nil
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
