package notify

import "fmt"

// ContextSource is the minimal session view onContextUpdate needs.
type ContextSource struct {
	SessionID      string
	UsedPercentage float64
}

// OnContextUpdate fires a threshold notification for each configured
// threshold newly crossed (§4.8). Dedup by (session_id, threshold) is
// permanent until the session is removed — no cooldown applies.
func (e *Engine) OnContextUpdate(sess ContextSource) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.cfg.ContextThresholds {
		if sess.UsedPercentage < float64(t) {
			continue
		}

		fired := e.firedThresholds[sess.SessionID]
		if fired == nil {
			fired = make(map[int]bool)
			e.firedThresholds[sess.SessionID] = fired
		}
		if fired[t] {
			continue
		}
		fired[t] = true

		if !e.cfg.categoryEnabled(CategoryContext) {
			continue
		}

		priority := PriorityMedium
		if t >= 70 {
			priority = PriorityHigh
		}
		e.fireLocked(Notification{
			Category:  CategoryContext,
			SessionID: sess.SessionID,
			Title:     fmt.Sprintf("Context at %d%%", t),
			Priority:  priority,
		})
	}
}

// OnPlanReady fires when a new plan document closes a plan-mode interval.
func (e *Engine) OnPlanReady(sessionID, title string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.categoryEnabled(CategoryPlan) {
		return
	}
	key := cooldownKey(CategoryPlan, sessionID, title)
	if !e.checkCooldownLocked(key, cooldownFor(CategoryPlan)) {
		return
	}
	e.fireLocked(Notification{
		Category:  CategoryPlan,
		SessionID: sessionID,
		Title:     "Plan ready",
		Body:      title,
		Priority:  PriorityMedium,
	})
}

// OnHandoffReady fires when a handoff document is written.
func (e *Engine) OnHandoffReady(sessionID, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.categoryEnabled(CategoryHandoff) {
		return
	}
	key := cooldownKey(CategoryHandoff, sessionID, path)
	if !e.checkCooldownLocked(key, cooldownFor(CategoryHandoff)) {
		return
	}
	e.fireLocked(Notification{
		Category:  CategoryHandoff,
		SessionID: sessionID,
		Title:     "Handoff ready",
		Body:      path,
		Priority:  PriorityMedium,
	})
}

// OperationEvent describes one observed agent operation (e.g. a large
// refactor or compaction) for onClaudeOperation gating.
type OperationEvent struct {
	SessionID   string
	Name        string
	Phase       string // "start", "progress", "complete"
	TotalTokens int
}

// OnClaudeOperation fires an "operation" notification, gated to only the
// large operations the config cares about (§4.8).
func (e *Engine) OnClaudeOperation(op OperationEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.categoryEnabled(CategoryOperation) {
		return
	}
	if op.Phase != "complete" || op.TotalTokens < e.cfg.LargeOperationThreshold {
		return
	}

	key := cooldownKey(CategoryOperation, op.SessionID, op.Name)
	if !e.checkCooldownLocked(key, cooldownFor(CategoryOperation)) {
		return
	}
	e.fireLocked(Notification{
		Category:  CategoryOperation,
		SessionID: op.SessionID,
		Title:     fmt.Sprintf("%s completed", op.Name),
		Body:      fmt.Sprintf("%d tokens", op.TotalTokens),
		Priority:  PriorityMedium,
	})
}

// OnAutocompactToggled fires the global autocompact-toggle fan-out
// notification.
func (e *Engine) OnAutocompactToggled(enabled bool, warning string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cfg.categoryEnabled(CategoryAutoCompact) {
		return
	}
	e.fireLocked(Notification{
		Category: CategoryAutoCompact,
		Title:    "Auto-compact toggled",
		Body:     warning,
		Priority: PriorityMedium,
	})
}
