package alerts

import "time"

// Filter narrows the active alert listing. Zero values match everything.
type Filter struct {
	Severities   []Severity
	RuleIDs      []string
	JobID        string
	Acknowledged *bool
	Limit        int
}

func (f Filter) matches(a *Alert) bool {
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, a.Severity) {
		return false
	}
	if len(f.RuleIDs) > 0 && !containsString(f.RuleIDs, a.RuleID) {
		return false
	}
	if f.JobID != "" && a.JobID != f.JobID {
		return false
	}
	if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
		return false
	}
	return true
}

func containsSeverity(list []Severity, s Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Statistics summarizes the engine's current state
type Statistics struct {
	Active       int              `json:"active"`
	Acknowledged int              `json:"acknowledged"`
	BySeverity   map[Severity]int `json:"by_severity"`
	ByRule       map[string]int   `json:"by_rule"`
	DedupEntries int              `json:"dedup_entries"`
	HistorySize  int              `json:"history_size"`
	Cycles       int64            `json:"cycles"`
	LastCycleAt  *time.Time       `json:"last_cycle_at,omitempty"`
}

// Active returns copies of the active alerts accepted by filter, highest priority first
func (e *Engine) Active(filter Filter) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	matched := e.queue.All(filter.matches)
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]Alert, 0, len(matched))
	for _, a := range matched {
		out = append(out, a.clone())
	}
	return out
}

// Highest returns the highest-priority active alert
func (e *Engine) Highest() (Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	top := e.queue.PeekHighest()
	if top == nil {
		return Alert{}, false
	}
	return top.clone(), true
}

// Get returns the active alert with the given id
func (e *Engine) Get(id string) (Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.active[id]
	if !ok {
		return Alert{}, false
	}
	return a.clone(), true
}

// Statistics returns counters over the active set and engine bookkeeping
func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{
		Active:       len(e.active),
		BySeverity:   e.severityCounts(),
		ByRule:       make(map[string]int),
		DedupEntries: e.dedup.Len(),
		HistorySize:  e.history.len(),
		Cycles:       e.cycles,
	}
	for _, a := range e.active {
		stats.ByRule[a.RuleID]++
		if a.Acknowledged {
			stats.Acknowledged++
		}
	}
	if e.lastSummary != nil {
		at := e.lastSummary.StartedAt
		stats.LastCycleAt = &at
	}
	return stats
}

// History returns up to limit recent lifecycle events, newest first.
// A non-positive limit returns everything retained.
func (e *Engine) History(limit int) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.history.newest(limit)
}

// Rules returns metadata for the registered rules
func (e *Engine) Rules() []RuleInfo {
	return e.registry.Info()
}

// LastCycle returns the summary of the most recent reconciliation
func (e *Engine) LastCycle() (CycleSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastSummary == nil {
		return CycleSummary{}, false
	}
	return *e.lastSummary, true
}
