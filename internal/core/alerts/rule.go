package alerts

import (
	"fmt"
	"time"
)

// EvalContext is everything a rule may look at when judging one job
type EvalContext struct {
	Job      Job
	Location *LocationVerification
	Now      time.Time
}

// Rule is one operational check. Implementations must be stateless and free
// of side effects; the evaluator isolates errors and panics per rule.
// ID, Name and Severity are read once, when the rule is registered.
type Rule interface {
	ID() string
	Name() string
	Severity() Severity
	Matches(ec EvalContext) (bool, error)
	Render(ec EvalContext) (string, error)
}

// RuleInfo describes a registered rule for the query surface
type RuleInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
}

// Registry is an ordered, construction-time set of rules
type Registry struct {
	rules []Rule
	info  []RuleInfo
	ids   map[string]struct{}
}

// NewRegistry creates a registry holding rules in the given order.
// Duplicate ids, empty ids and unknown severities are rejected.
func NewRegistry(rules ...Rule) (*Registry, error) {
	r := &Registry{ids: make(map[string]struct{}, len(rules))}
	for _, rule := range rules {
		if err := r.add(rule); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("nil rule")
	}
	info, err := describe(rule)
	if err != nil {
		return err
	}
	if info.ID == "" {
		return fmt.Errorf("rule %q has an empty id", info.Name)
	}
	if _, exists := r.ids[info.ID]; exists {
		return fmt.Errorf("duplicate rule id %q", info.ID)
	}
	if !info.Severity.Valid() {
		return fmt.Errorf("rule %q has unknown severity %q", info.ID, info.Severity)
	}
	r.ids[info.ID] = struct{}{}
	r.rules = append(r.rules, rule)
	r.info = append(r.info, info)
	return nil
}

func describe(rule Rule) (info RuleInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule metadata panicked: %v", r)
		}
	}()
	return RuleInfo{ID: rule.ID(), Name: rule.Name(), Severity: rule.Severity()}, nil
}

// Rules returns the registered rules in evaluation order
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Len returns the number of registered rules
func (r *Registry) Len() int {
	return len(r.rules)
}

// Info returns display metadata for every registered rule
func (r *Registry) Info() []RuleInfo {
	info := make([]RuleInfo, len(r.info))
	copy(info, r.info)
	return info
}
