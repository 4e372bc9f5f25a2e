package alerts

import (
	"errors"
	"time"
)

// ErrAlertNotFound is returned when an alert id is not in the active set
var ErrAlertNotFound = errors.New("alert not found")

// ResolveReason tells consumers why an alert left the active set automatically
type ResolveReason string

const (
	ResolveConditionCleared ResolveReason = "condition_cleared"
	ResolveJobAbsent        ResolveReason = "job_absent"
)

// Alert is a materialized violation of one rule for one job. ID, Severity and
// Message are frozen at creation.
type Alert struct {
	ID             string        `json:"id"`
	RuleID         string        `json:"rule_id"`
	RuleName       string        `json:"rule_name"`
	Severity       Severity      `json:"severity"`
	Message        string        `json:"message"`
	JobID          string        `json:"job_id"`
	Timestamp      time.Time     `json:"timestamp"`
	Acknowledged   bool          `json:"acknowledged"`
	AcknowledgedBy string        `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	DismissedBy    string        `json:"dismissed_by,omitempty"`
	DismissedAt    *time.Time    `json:"dismissed_at,omitempty"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	ResolveReason  ResolveReason `json:"resolve_reason,omitempty"`
	Fingerprint    string        `json:"fingerprint"`
}

// AlertID returns the deterministic alert id for a rule/job pair
func AlertID(ruleID, jobID string) string {
	return ruleID + "-" + jobID
}

// Fingerprint returns the deduplication key for a rule/job pair
func Fingerprint(ruleID, jobID string) string {
	return ruleID + ":" + jobID
}

// Candidate is the transient result of a rule matching a job, before
// deduplication decides whether it becomes an Alert.
type Candidate struct {
	RuleID   string
	RuleName string
	Severity Severity
	JobID    string
	Message  string
}

// ID returns the alert id the candidate would materialize as
func (c Candidate) ID() string {
	return AlertID(c.RuleID, c.JobID)
}

// Fingerprint returns the candidate's deduplication key
func (c Candidate) Fingerprint() string {
	return Fingerprint(c.RuleID, c.JobID)
}

func (c Candidate) materialize(now time.Time) *Alert {
	return &Alert{
		ID:          c.ID(),
		RuleID:      c.RuleID,
		RuleName:    c.RuleName,
		Severity:    c.Severity,
		Message:     c.Message,
		JobID:       c.JobID,
		Timestamp:   now,
		Fingerprint: c.Fingerprint(),
	}
}

func (a *Alert) clone() Alert {
	out := *a
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		out.AcknowledgedAt = &t
	}
	if a.DismissedAt != nil {
		t := *a.DismissedAt
		out.DismissedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// CycleSummary reports the outcome of one reconciliation cycle
type CycleSummary struct {
	Total          int              `json:"total"`
	New            int              `json:"new"`
	Resolved       int              `json:"resolved"`
	BySeverity     map[Severity]int `json:"by_severity"`
	NewAlerts      []Alert          `json:"new_alerts"`
	ResolvedAlerts []Alert          `json:"resolved_alerts"`

	Evaluated   int           `json:"evaluated"`
	SkippedJobs int           `json:"skipped_jobs"`
	RuleErrors  int           `json:"rule_errors"`
	Suppressed  int           `json:"suppressed"`
	Retained    int           `json:"retained"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}
