package alerts

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_CandidatesFollowRegistryOrder(t *testing.T) {
	registry, err := NewRegistry(
		stubRule{id: "second", severity: SeverityLow},
		stubRule{id: "first", severity: SeverityCritical},
		stubRule{id: "never", severity: SeverityHigh, match: func(EvalContext) (bool, error) { return false, nil }},
	)
	require.NoError(t, err)

	candidates, errs := NewEvaluator(registry, quietLogger()).Evaluate(enteredJob("42"), nil, baseTime)
	assert.Empty(t, errs)
	require.Len(t, candidates, 2)
	assert.Equal(t, "second", candidates[0].RuleID)
	assert.Equal(t, "first", candidates[1].RuleID)
	assert.Equal(t, "second-42", candidates[0].ID())
	assert.Equal(t, "second:42", candidates[0].Fingerprint())
	assert.Equal(t, "stub alert for 42", candidates[0].Message)
}

func TestEvaluator_ReportsRuleErrors(t *testing.T) {
	registry, err := NewRegistry(
		stubRule{id: "panics", severity: SeverityHigh, render: func(EvalContext) (string, error) { panic("render") }},
		stubRule{id: "errors", severity: SeverityHigh, match: func(EvalContext) (bool, error) { return false, errStub }},
		stubRule{id: "fine", severity: SeverityLow},
	)
	require.NoError(t, err)

	candidates, errs := NewEvaluator(registry, nil).Evaluate(enteredJob("43"), nil, baseTime)
	require.Len(t, candidates, 1)
	assert.Equal(t, "fine", candidates[0].RuleID)

	require.Len(t, errs, 2)
	var ruleErr *RuleError
	require.True(t, errors.As(errs[0], &ruleErr))
	assert.Equal(t, "panics", ruleErr.RuleID)
	assert.Equal(t, "render", ruleErr.Stage)
	assert.True(t, errors.Is(errs[1], errStub))
}

// volatileRule answers its metadata until broken is set, then panics
type volatileRule struct {
	stubRule
	broken *bool
}

func (r volatileRule) ID() string {
	if *r.broken {
		panic("id")
	}
	return r.stubRule.ID()
}

func (r volatileRule) Name() string {
	if *r.broken {
		panic("name")
	}
	return r.stubRule.Name()
}

func (r volatileRule) Severity() Severity {
	if *r.broken {
		panic("severity")
	}
	return r.stubRule.Severity()
}

func TestEvaluator_UsesMetadataCapturedAtRegistration(t *testing.T) {
	broken := false
	registry, err := NewRegistry(
		volatileRule{stubRule: stubRule{id: "volatile", severity: SeverityHigh}, broken: &broken},
		stubRule{id: "fine", severity: SeverityLow},
	)
	require.NoError(t, err)

	broken = true

	var candidates []Candidate
	var errs []error
	require.NotPanics(t, func() {
		candidates, errs = NewEvaluator(registry, quietLogger()).Evaluate(enteredJob("44"), nil, baseTime)
	})
	assert.Empty(t, errs)
	require.Len(t, candidates, 2)
	assert.Equal(t, "volatile", candidates[0].RuleID)
	assert.Equal(t, "stub volatile", candidates[0].RuleName)
	assert.Equal(t, SeverityHigh, candidates[0].Severity)
	assert.Equal(t, "fine", candidates[1].RuleID)

	require.NotPanics(t, func() {
		info := registry.Info()
		require.Len(t, info, 2)
		assert.Equal(t, "volatile", info[0].ID)
	})
}

func TestNewRegistry_RejectsPanickingMetadata(t *testing.T) {
	broken := true
	_, err := NewRegistry(volatileRule{stubRule: stubRule{id: "volatile", severity: SeverityHigh}, broken: &broken})
	assert.ErrorContains(t, err, "metadata panicked")
}
