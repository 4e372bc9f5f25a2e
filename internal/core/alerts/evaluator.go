package alerts

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// RuleError records a rule that failed while judging a job
type RuleError struct {
	RuleID string
	JobID  string
	Stage  string // "match" or "render"
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s %s failed for job %s: %v", e.RuleID, e.Stage, e.JobID, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// Evaluator applies every registered rule to a single job
type Evaluator struct {
	registry *Registry
	logger   *logrus.Logger
}

// NewEvaluator creates an evaluator over the given registry
func NewEvaluator(registry *Registry, logger *logrus.Logger) *Evaluator {
	return &Evaluator{registry: registry, logger: logger}
}

// Evaluate runs all rules against one job. A rule that errors or panics is
// skipped for this job only; the failure is logged and returned alongside the
// candidates produced by the remaining rules.
func (e *Evaluator) Evaluate(job Job, loc *LocationVerification, now time.Time) ([]Candidate, []error) {
	ec := EvalContext{Job: job, Location: loc, Now: now}

	var candidates []Candidate
	var errs []error

	for i, rule := range e.registry.rules {
		info := e.registry.info[i]

		matched, err := safeMatch(rule, ec)
		if err != nil {
			errs = append(errs, e.ruleFailed(info, job, "match", err))
			continue
		}
		if !matched {
			continue
		}

		message, err := safeRender(rule, ec)
		if err != nil {
			errs = append(errs, e.ruleFailed(info, job, "render", err))
			continue
		}

		candidates = append(candidates, Candidate{
			RuleID:   info.ID,
			RuleName: info.Name,
			Severity: info.Severity,
			JobID:    job.ID,
			Message:  message,
		})
	}

	return candidates, errs
}

func (e *Evaluator) ruleFailed(info RuleInfo, job Job, stage string, err error) error {
	ruleErr := &RuleError{RuleID: info.ID, JobID: job.ID, Stage: stage, Err: err}
	if e.logger != nil {
		e.logger.WithFields(logrus.Fields{
			"rule_id": info.ID,
			"job_id":  job.ID,
			"stage":   stage,
		}).WithError(err).Warn("Rule evaluation failed, skipping rule for job")
	}
	return ruleErr
}

func safeMatch(rule Rule, ec EvalContext) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Matches(ec)
}

func safeRender(rule Rule, ec EvalContext) (message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			message = ""
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return rule.Render(ec)
}
