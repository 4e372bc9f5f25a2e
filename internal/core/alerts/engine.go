package alerts

import (
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Clock provides time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Engine owns the active alert set for one polling loop. It is meant to live
// as long as the loop does: recreating it per cycle loses the active set and
// the deduplication table, and every violation is reported as new again.
// Use Snapshot and Restore when the state must survive a process restart.
type Engine struct {
	mu sync.Mutex

	registry  *Registry
	evaluator *Evaluator
	dedup     *Deduplicator
	queue     *PriorityQueue
	active    map[string]*Alert
	absent    map[string]int
	history   *historyRing

	publisher    Publisher
	clock        Clock
	logger       *logrus.Logger
	workers      int
	absenceGrace int
	dedupWindow  time.Duration
	historySize  int

	cycles      int64
	lastSummary *CycleSummary
}

// EngineOption customizes the engine
type EngineOption func(*Engine)

// WithClock assigns a clock
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger assigns a logger
func WithLogger(logger *logrus.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithPublisher assigns the destination for lifecycle events
func WithPublisher(publisher Publisher) EngineOption {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithDedupWindow sets the deduplication window
func WithDedupWindow(window time.Duration) EngineOption {
	return func(e *Engine) {
		e.dedupWindow = window
	}
}

// WithWorkers evaluates jobs on up to n goroutines. Values below 2 keep
// evaluation on the calling goroutine.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithAbsenceGrace keeps alerts for jobs missing from the batch for up to n
// consecutive cycles before resolving them. Zero resolves on the first
// absent cycle.
func WithAbsenceGrace(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.absenceGrace = n
		}
	}
}

// WithHistorySize bounds the in-memory event history
func WithHistorySize(n int) EngineOption {
	return func(e *Engine) {
		e.historySize = n
	}
}

// NewEngine constructs an engine evaluating the rules in registry
func NewEngine(registry *Registry, opts ...EngineOption) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("alerts: nil rule registry")
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	e := &Engine{
		registry:    registry,
		queue:       NewPriorityQueue(),
		active:      make(map[string]*Alert),
		absent:      make(map[string]int),
		clock:       systemClock{},
		logger:      discard,
		dedupWindow: DefaultDedupWindow,
		historySize: 1000,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.evaluator = NewEvaluator(registry, e.logger)
	e.dedup = NewDeduplicator(e.dedupWindow)
	e.history = newHistoryRing(e.historySize)

	return e, nil
}

type jobResult struct {
	jobID      string
	skipped    bool
	candidates []Candidate
	errs       []error
}

// Reconcile evaluates one batch of job snapshots and diffs the result against
// the active set. Candidates already active are left untouched, new ones are
// created unless their fingerprint is still inside the deduplication window,
// and active alerts that were not reproduced are resolved.
//
// The batch is evaluated without holding the engine lock; every mutation
// happens in a single commit phase afterwards. Callers must not run two
// cycles at once.
func (e *Engine) Reconcile(jobs []Job, locations map[string]LocationVerification) CycleSummary {
	started := e.clock.Now()
	results := e.evaluate(jobs, locations, started)

	e.mu.Lock()
	summary, events := e.commit(results, started)
	e.mu.Unlock()

	e.publish(events...)

	e.logger.WithFields(logrus.Fields{
		"jobs":        len(jobs),
		"total":       summary.Total,
		"new":         summary.New,
		"resolved":    summary.Resolved,
		"suppressed":  summary.Suppressed,
		"retained":    summary.Retained,
		"rule_errors": summary.RuleErrors,
		"skipped":     summary.SkippedJobs,
	}).Debug("Reconciliation cycle complete")

	return summary
}

func (e *Engine) evaluate(jobs []Job, locations map[string]LocationVerification, now time.Time) []jobResult {
	results := make([]jobResult, len(jobs))

	evalOne := func(i int) {
		job := jobs[i]
		if job.ID == "" {
			results[i] = jobResult{skipped: true}
			return
		}
		var loc *LocationVerification
		if v, ok := locations[job.ID]; ok {
			loc = &v
		}
		candidates, errs := e.evaluator.Evaluate(job, loc, now)
		results[i] = jobResult{jobID: job.ID, candidates: candidates, errs: errs}
	}

	if e.workers < 2 || len(jobs) < 2 {
		for i := range jobs {
			evalOne(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range jobs {
		i := i
		g.Go(func() error {
			evalOne(i)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// commit applies one cycle's evaluation results. Callers hold e.mu.
func (e *Engine) commit(results []jobResult, now time.Time) (CycleSummary, []Event) {
	summary := CycleSummary{
		StartedAt:      now,
		NewAlerts:      []Alert{},
		ResolvedAlerts: []Alert{},
	}

	e.dedup.PurgeExpired(now)

	present := make(map[string]bool, len(results))
	current := make(map[string]bool)
	var events []Event

	for _, res := range results {
		if res.skipped {
			summary.SkippedJobs++
			continue
		}
		summary.Evaluated++
		summary.RuleErrors += len(res.errs)
		present[res.jobID] = true

		for _, c := range res.candidates {
			id := c.ID()
			if current[id] {
				continue
			}
			if _, ok := e.active[id]; ok {
				current[id] = true
				continue
			}
			if e.dedup.IsDuplicate(c.Fingerprint(), now) {
				summary.Suppressed++
				continue
			}

			alert := c.materialize(now)
			e.active[id] = alert
			e.queue.Enqueue(alert)
			e.dedup.Record(alert.Fingerprint, now)
			current[id] = true

			summary.NewAlerts = append(summary.NewAlerts, alert.clone())
			events = append(events, newEvent(ActionCreated, "", alert, now))
		}
	}

	for jobID := range present {
		delete(e.absent, jobID)
	}
	missedThisCycle := make(map[string]bool)

	var resolved []*Alert
	for id, alert := range e.active {
		if current[id] {
			continue
		}
		reason := ResolveConditionCleared
		if !present[alert.JobID] {
			reason = ResolveJobAbsent
			if !missedThisCycle[alert.JobID] {
				missedThisCycle[alert.JobID] = true
				e.absent[alert.JobID]++
			}
			if e.absent[alert.JobID] <= e.absenceGrace {
				summary.Retained++
				continue
			}
		}
		resolvedAt := now
		alert.ResolvedAt = &resolvedAt
		alert.ResolveReason = reason
		resolved = append(resolved, alert)
	}

	sort.Slice(resolved, func(i, j int) bool { return higherPriority(resolved[i], resolved[j]) })
	for _, alert := range resolved {
		delete(e.active, alert.ID)
		e.queue.Remove(alert.ID)
		summary.ResolvedAlerts = append(summary.ResolvedAlerts, alert.clone())
		events = append(events, newEvent(ActionResolved, "", alert, now))
	}
	e.pruneAbsent()

	summary.New = len(summary.NewAlerts)
	summary.Resolved = len(summary.ResolvedAlerts)
	summary.Total = len(e.active)
	summary.BySeverity = e.severityCounts()
	summary.Duration = e.clock.Now().Sub(now)

	e.history.add(events...)
	e.cycles++
	last := summary
	e.lastSummary = &last

	return summary, events
}

// pruneAbsent forgets absence counters for jobs that no longer own an active alert
func (e *Engine) pruneAbsent() {
	if len(e.absent) == 0 {
		return
	}
	owners := make(map[string]bool, len(e.active))
	for _, alert := range e.active {
		owners[alert.JobID] = true
	}
	for jobID := range e.absent {
		if !owners[jobID] {
			delete(e.absent, jobID)
		}
	}
}

func (e *Engine) severityCounts() map[Severity]int {
	counts := emptySeverityCounts()
	for _, alert := range e.active {
		counts[alert.Severity]++
	}
	return counts
}

// Registry returns the engine's rule registry
func (e *Engine) Registry() *Registry {
	return e.registry
}
