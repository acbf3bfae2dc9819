package server

import "sync"

// activeRuns tracks the runs executing in this process so that a run is never
// driven by two requests at once.
type activeRuns struct {
	mu   sync.Mutex
	runs map[string]struct{}
}

func newActiveRuns() *activeRuns {
	return &activeRuns{runs: make(map[string]struct{})}
}

// acquire marks runID active; false if it already was
func (a *activeRuns) acquire(runID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.runs[runID]; ok {
		return false
	}
	a.runs[runID] = struct{}{}
	return true
}

func (a *activeRuns) release(runID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.runs, runID)
}

func (a *activeRuns) has(runID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.runs[runID]
	return ok
}
