package alerts

import (
	"fmt"
	"time"
)

const (
	RuleMissingTruck         = "missing-truck-assignment"
	RuleMissingDriver        = "missing-driver-assignment"
	RuleStalledInProgress    = "stalled-in-progress"
	RuleArrivedNotCompleted  = "arrived-not-completed"
	RuleCompletedNoArrival   = "completed-without-arrival"
	RuleLocationMismatch     = "location-mismatch"
	RuleNoTracking           = "no-tracking"
	RuleOverdueNotStarted    = "overdue-not-started"
	defaultStallAfter        = 2 * time.Hour
	defaultArrivedGrace      = 4 * time.Hour
	timeOfDayFormat          = "15:04"
	missingTimestampSentinel = "unknown"
)

// BuiltinOptions tunes the built-in rule set
type BuiltinOptions struct {
	// Disabled lists rule ids to leave out of the registry
	Disabled []string
	// StallAfter is how long an in-progress job may sit after arrival
	StallAfter time.Duration
	// ArrivedGrace is how long any unfinished job may go uncompleted after
	// arrival before it counts as arrived without completion
	ArrivedGrace time.Duration
	// Severities overrides the default severity per rule id
	Severities map[string]Severity
}

// BuiltinRules returns the default operational rules in evaluation order
func BuiltinRules(opts BuiltinOptions) []Rule {
	stallAfter := opts.StallAfter
	if stallAfter <= 0 {
		stallAfter = defaultStallAfter
	}
	arrivedGrace := opts.ArrivedGrace
	if arrivedGrace <= 0 {
		arrivedGrace = defaultArrivedGrace
	}

	all := []Rule{
		missingTruckRule{severity: SeverityHigh},
		missingDriverRule{severity: SeverityMedium},
		stalledInProgressRule{severity: SeverityHigh, after: stallAfter},
		arrivedNotCompletedRule{severity: SeverityCritical, grace: arrivedGrace},
		completedWithoutArrivalRule{severity: SeverityLow},
		locationMismatchRule{severity: SeverityHigh},
		noTrackingRule{severity: SeverityLow},
		overdueNotStartedRule{severity: SeverityMedium},
	}

	disabled := make(map[string]bool, len(opts.Disabled))
	for _, id := range opts.Disabled {
		disabled[id] = true
	}

	rules := make([]Rule, 0, len(all))
	for _, rule := range all {
		if disabled[rule.ID()] {
			continue
		}
		if sev, ok := opts.Severities[rule.ID()]; ok && sev.Valid() {
			rule = withSeverity{Rule: rule, severity: sev}
		}
		rules = append(rules, rule)
	}
	return rules
}

// withSeverity overrides the severity of a wrapped rule
type withSeverity struct {
	Rule
	severity Severity
}

func (w withSeverity) Severity() Severity { return w.severity }

func formatClock(t *time.Time) string {
	if t == nil {
		return missingTimestampSentinel
	}
	return t.Format(timeOfDayFormat)
}

// missingTruckRule fires for open jobs with no truck assigned.
type missingTruckRule struct{ severity Severity }

func (missingTruckRule) ID() string           { return RuleMissingTruck }
func (missingTruckRule) Name() string         { return "Missing truck assignment" }
func (r missingTruckRule) Severity() Severity { return r.severity }

func (missingTruckRule) Matches(ec EvalContext) (bool, error) {
	return ec.Job.Status.Open() && !ec.Job.HasTruck(), nil
}

func (missingTruckRule) Render(ec EvalContext) (string, error) {
	return fmt.Sprintf("Job %s is %s with no truck assigned", ec.Job.ID, ec.Job.Status), nil
}

// missingDriverRule fires when a truck is assigned to an open job but no driver is.
type missingDriverRule struct{ severity Severity }

func (missingDriverRule) ID() string           { return RuleMissingDriver }
func (missingDriverRule) Name() string         { return "Missing driver assignment" }
func (r missingDriverRule) Severity() Severity { return r.severity }

func (missingDriverRule) Matches(ec EvalContext) (bool, error) {
	return ec.Job.Status.Open() && ec.Job.HasTruck() && !ec.Job.HasDriver(), nil
}

func (missingDriverRule) Render(ec EvalContext) (string, error) {
	return fmt.Sprintf("Job %s has truck %s but no driver assigned", ec.Job.ID, ec.Job.TruckID), nil
}

type stalledInProgressRule struct {
	severity Severity
	after    time.Duration
}

func (stalledInProgressRule) ID() string           { return RuleStalledInProgress }
func (stalledInProgressRule) Name() string         { return "Stalled in progress" }
func (r stalledInProgressRule) Severity() Severity { return r.severity }

func (r stalledInProgressRule) Matches(ec EvalContext) (bool, error) {
	j := ec.Job
	if j.Status != StatusInProgress || j.ArrivedAt == nil || j.CompletedAt != nil {
		return false, nil
	}
	return ec.Now.Sub(*j.ArrivedAt) > r.after, nil
}

func (r stalledInProgressRule) Render(ec EvalContext) (string, error) {
	elapsed := ec.Now.Sub(*ec.Job.ArrivedAt).Truncate(time.Minute)
	return fmt.Sprintf("Job %s has been in progress for %s since arrival at %s",
		ec.Job.ID, elapsed, formatClock(ec.Job.ArrivedAt)), nil
}

// arrivedNotCompletedRule catches jobs where the crew arrived but the job was
// never closed out: either the job's day has passed, or the grace period since
// arrival has run out. Any status short of a final outcome qualifies.
type arrivedNotCompletedRule struct {
	severity Severity
	grace    time.Duration
}

func (arrivedNotCompletedRule) ID() string           { return RuleArrivedNotCompleted }
func (arrivedNotCompletedRule) Name() string         { return "Arrived without completion" }
func (r arrivedNotCompletedRule) Severity() Severity { return r.severity }

func (r arrivedNotCompletedRule) Matches(ec EvalContext) (bool, error) {
	j := ec.Job
	switch j.Status {
	case StatusCompleted, StatusAttempted, StatusRescheduled:
		return false, nil
	}
	if j.ArrivedAt == nil || j.CompletedAt != nil {
		return false, nil
	}
	return j.Before(ec.Now) || ec.Now.Sub(*j.ArrivedAt) >= r.grace, nil
}

func (arrivedNotCompletedRule) Render(ec EvalContext) (string, error) {
	day := "an unknown date"
	if !ec.Job.JobDate.IsZero() {
		day = ec.Job.JobDate.Format("2006-01-02")
	}
	return fmt.Sprintf("Job %s arrived at %s on %s but was never completed (status %s)",
		ec.Job.ID, formatClock(ec.Job.ArrivedAt), day, ec.Job.Status), nil
}

type completedWithoutArrivalRule struct{ severity Severity }

func (completedWithoutArrivalRule) ID() string           { return RuleCompletedNoArrival }
func (completedWithoutArrivalRule) Name() string         { return "Completed without arrival" }
func (r completedWithoutArrivalRule) Severity() Severity { return r.severity }

func (completedWithoutArrivalRule) Matches(ec EvalContext) (bool, error) {
	return ec.Job.Status == StatusCompleted && ec.Job.ArrivedAt == nil, nil
}

func (completedWithoutArrivalRule) Render(ec EvalContext) (string, error) {
	return fmt.Sprintf("Job %s was completed at %s with no arrival recorded",
		ec.Job.ID, formatClock(ec.Job.CompletedAt)), nil
}

// locationMismatchRule relies on the per-cycle location verification and
// stays quiet when none was supplied for the job.
type locationMismatchRule struct{ severity Severity }

func (locationMismatchRule) ID() string           { return RuleLocationMismatch }
func (locationMismatchRule) Name() string         { return "Location mismatch" }
func (r locationMismatchRule) Severity() Severity { return r.severity }

func (locationMismatchRule) Matches(ec EvalContext) (bool, error) {
	if ec.Location == nil {
		return false, nil
	}
	if ec.Job.Status != StatusInProgress && ec.Job.Status != StatusCompleted {
		return false, nil
	}
	return ec.Location.Status == LocationOffSchedule, nil
}

func (locationMismatchRule) Render(ec EvalContext) (string, error) {
	truck := ec.Job.TruckID
	if truck == "" {
		truck = "unassigned"
	}
	return fmt.Sprintf("Job %s is %s but truck %s was %.0fm from the site",
		ec.Job.ID, ec.Job.Status, truck, ec.Location.Distance), nil
}

type noTrackingRule struct{ severity Severity }

func (noTrackingRule) ID() string           { return RuleNoTracking }
func (noTrackingRule) Name() string         { return "No tracking data" }
func (r noTrackingRule) Severity() Severity { return r.severity }

func (noTrackingRule) Matches(ec EvalContext) (bool, error) {
	if ec.Location == nil {
		return false, nil
	}
	return ec.Job.Status == StatusInProgress && !ec.Location.HasTracking, nil
}

func (noTrackingRule) Render(ec EvalContext) (string, error) {
	return fmt.Sprintf("Job %s is in progress but truck %s has no tracking data", ec.Job.ID, ec.Job.TruckID), nil
}

type overdueNotStartedRule struct{ severity Severity }

func (overdueNotStartedRule) ID() string           { return RuleOverdueNotStarted }
func (overdueNotStartedRule) Name() string         { return "Overdue and not started" }
func (r overdueNotStartedRule) Severity() Severity { return r.severity }

func (overdueNotStartedRule) Matches(ec EvalContext) (bool, error) {
	return ec.Job.Status == StatusEntered && ec.Job.Before(ec.Now), nil
}

func (overdueNotStartedRule) Render(ec EvalContext) (string, error) {
	return fmt.Sprintf("Job %s was scheduled for %s and is still %s",
		ec.Job.ID, ec.Job.JobDate.Format("2006-01-02"), ec.Job.Status), nil
}
