package notify

import (
	"os"
	"time"

	"github.com/gregory-lime/jacques/internal/modedetect"
)

const planCheckDebounce = 30 * time.Second

// planState is CheckForNewPlans's per-session debounce and dedup state.
type planState struct {
	lastCheck time.Time
	known     map[string]bool
}

// CheckForNewPlans implements §4.8 checkForNewPlans: a 30-second
// per-session debounce wrapping the mode-and-plans detector, firing
// OnPlanReady for every plan-mode completion title not seen before.
func (e *Engine) CheckForNewPlans(sessionID, jsonlPath string) error {
	e.mu.Lock()
	state := e.planStates[sessionID]
	if state == nil {
		state = &planState{known: make(map[string]bool)}
		e.planStates[sessionID] = state
	}
	if time.Since(state.lastCheck) < planCheckDebounce {
		e.mu.Unlock()
		return nil
	}
	state.lastCheck = time.Now()
	e.mu.Unlock()

	data, err := os.ReadFile(jsonlPath)
	if err != nil {
		return err
	}
	analysis := modedetect.Analyze(data)

	var newTitles []string
	e.mu.Lock()
	for _, c := range analysis.Completions {
		if !state.known[c.Title] {
			state.known[c.Title] = true
			newTitles = append(newTitles, c.Title)
		}
	}
	e.mu.Unlock()

	for _, title := range newTitles {
		e.OnPlanReady(sessionID, title)
	}
	return nil
}
