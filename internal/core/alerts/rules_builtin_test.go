package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findRule(t *testing.T, rules []Rule, id string) Rule {
	t.Helper()
	for _, r := range rules {
		if r.ID() == id {
			return r
		}
	}
	t.Fatalf("rule %s not registered", id)
	return nil
}

func TestBuiltinRules_Matches(t *testing.T) {
	rules := BuiltinRules(BuiltinOptions{})
	yesterday := baseTime.AddDate(0, 0, -1)
	offSchedule := &LocationVerification{Status: LocationOffSchedule, Distance: 800, HasTracking: true}
	verified := &LocationVerification{Status: LocationVerified, HasTracking: true}
	untracked := &LocationVerification{Status: LocationUnknown, HasTracking: false}

	tests := []struct {
		name     string
		rule     string
		job      Job
		location *LocationVerification
		expected bool
	}{
		{"entered without truck", RuleMissingTruck, Job{ID: "1", Status: StatusEntered}, nil, true},
		{"in progress without truck", RuleMissingTruck, Job{ID: "1", Status: StatusInProgress}, nil, true},
		{"completed without truck", RuleMissingTruck, Job{ID: "1", Status: StatusCompleted}, nil, false},
		{"entered with truck", RuleMissingTruck, Job{ID: "1", Status: StatusEntered, TruckID: "T"}, nil, false},
		{"whitespace truck", RuleMissingTruck, Job{ID: "1", Status: StatusEntered, TruckID: "  "}, nil, true},

		{"truck without driver", RuleMissingDriver, Job{ID: "1", Status: StatusEntered, TruckID: "T"}, nil, true},
		{"no truck no driver", RuleMissingDriver, Job{ID: "1", Status: StatusEntered}, nil, false},
		{"truck and driver", RuleMissingDriver, Job{ID: "1", Status: StatusInProgress, TruckID: "T", DriverID: "D"}, nil, false},

		{"stalled", RuleStalledInProgress, Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(baseTime.Add(-3 * time.Hour))}, nil, true},
		{"recent arrival", RuleStalledInProgress, Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(baseTime.Add(-time.Hour))}, nil, false},
		{"stalled but completed", RuleStalledInProgress, Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(baseTime.Add(-3 * time.Hour)), CompletedAt: timePtr(baseTime)}, nil, false},
		{"in progress no arrival", RuleStalledInProgress, Job{ID: "1", Status: StatusInProgress}, nil, false},

		{"arrived yesterday never completed", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(yesterday), JobDate: yesterday}, nil, true},
		{"arrived today", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(baseTime), JobDate: baseTime}, nil, false},
		{"arrived yesterday rescheduled", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusRescheduled, ArrivedAt: timePtr(yesterday), JobDate: yesterday}, nil, false},
		{"entered arrived past grace", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusEntered, ArrivedAt: timePtr(baseTime.Add(-5 * time.Hour)), JobDate: baseTime}, nil, true},
		{"in progress arrived past grace", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(baseTime.Add(-4 * time.Hour)), JobDate: baseTime}, nil, true},
		{"entered arrived within grace", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusEntered, ArrivedAt: timePtr(baseTime.Add(-3 * time.Hour)), JobDate: baseTime}, nil, false},
		{"undated arrived past grace", RuleArrivedNotCompleted, Job{ID: "1", Status: JobStatus("On Hold"), ArrivedAt: timePtr(baseTime.Add(-6 * time.Hour))}, nil, true},
		{"attempted arrived past grace", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusAttempted, ArrivedAt: timePtr(baseTime.Add(-6 * time.Hour)), JobDate: baseTime}, nil, false},
		{"arrived yesterday completed", RuleArrivedNotCompleted, Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(yesterday), CompletedAt: timePtr(yesterday), JobDate: yesterday}, nil, false},

		{"completed no arrival", RuleCompletedNoArrival, Job{ID: "1", Status: StatusCompleted, CompletedAt: timePtr(baseTime)}, nil, true},
		{"completed with arrival", RuleCompletedNoArrival, Job{ID: "1", Status: StatusCompleted, ArrivedAt: timePtr(baseTime)}, nil, false},

		{"off schedule in progress", RuleLocationMismatch, Job{ID: "1", Status: StatusInProgress, TruckID: "T"}, offSchedule, true},
		{"off schedule completed", RuleLocationMismatch, Job{ID: "1", Status: StatusCompleted, TruckID: "T"}, offSchedule, true},
		{"off schedule entered", RuleLocationMismatch, Job{ID: "1", Status: StatusEntered, TruckID: "T"}, offSchedule, false},
		{"verified", RuleLocationMismatch, Job{ID: "1", Status: StatusInProgress, TruckID: "T"}, verified, false},
		{"no verification", RuleLocationMismatch, Job{ID: "1", Status: StatusInProgress, TruckID: "T"}, nil, false},

		{"untracked in progress", RuleNoTracking, Job{ID: "1", Status: StatusInProgress, TruckID: "T"}, untracked, true},
		{"tracked in progress", RuleNoTracking, Job{ID: "1", Status: StatusInProgress, TruckID: "T"}, verified, false},
		{"tracking unknown", RuleNoTracking, Job{ID: "1", Status: StatusInProgress, TruckID: "T"}, nil, false},

		{"entered yesterday", RuleOverdueNotStarted, Job{ID: "1", Status: StatusEntered, JobDate: yesterday}, nil, true},
		{"entered today", RuleOverdueNotStarted, Job{ID: "1", Status: StatusEntered, JobDate: baseTime}, nil, false},
		{"entered no date", RuleOverdueNotStarted, Job{ID: "1", Status: StatusEntered}, nil, false},
		{"unknown status", RuleOverdueNotStarted, Job{ID: "1", Status: JobStatus("On Hold"), JobDate: yesterday}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.name, func(t *testing.T) {
			rule := findRule(t, rules, tt.rule)
			ec := EvalContext{Job: tt.job, Location: tt.location, Now: baseTime}

			matched, err := rule.Matches(ec)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)

			if matched {
				message, err := rule.Render(ec)
				require.NoError(t, err)
				assert.Contains(t, message, tt.job.ID)
			}
		})
	}
}

func TestBuiltinRules_Options(t *testing.T) {
	rules := BuiltinRules(BuiltinOptions{
		Disabled:     []string{RuleNoTracking, RuleCompletedNoArrival},
		StallAfter:   30 * time.Minute,
		ArrivedGrace: time.Hour,
		Severities:   map[string]Severity{RuleMissingDriver: SeverityCritical, RuleMissingTruck: Severity("bogus")},
	})
	require.Len(t, rules, 6)

	assert.Equal(t, SeverityCritical, findRule(t, rules, RuleMissingDriver).Severity())
	assert.Equal(t, SeverityHigh, findRule(t, rules, RuleMissingTruck).Severity())

	stalled := findRule(t, rules, RuleStalledInProgress)
	matched, err := stalled.Matches(EvalContext{
		Job: Job{ID: "1", Status: StatusInProgress, ArrivedAt: timePtr(baseTime.Add(-45 * time.Minute))},
		Now: baseTime,
	})
	require.NoError(t, err)
	assert.True(t, matched)

	arrived := findRule(t, rules, RuleArrivedNotCompleted)
	matched, err = arrived.Matches(EvalContext{
		Job: Job{ID: "1", Status: StatusEntered, ArrivedAt: timePtr(baseTime.Add(-90 * time.Minute)), JobDate: baseTime},
		Now: baseTime,
	})
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestBuiltinRules_MissingTruckMessage(t *testing.T) {
	rule := findRule(t, BuiltinRules(BuiltinOptions{}), RuleMissingTruck)
	message, err := rule.Render(EvalContext{Job: Job{ID: "356001", Status: StatusEntered}, Now: baseTime})
	require.NoError(t, err)
	assert.Equal(t, "Job 356001 is Entered with no truck assigned", message)
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry(stubRule{id: "a", severity: SeverityLow}, stubRule{id: "a", severity: SeverityHigh})
	assert.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(stubRule{id: "", severity: SeverityLow})
	assert.Error(t, err)

	_, err = NewRegistry(stubRule{id: "a", severity: Severity("nope")})
	assert.Error(t, err)

	_, err = NewRegistry(nil)
	assert.Error(t, err)

	registry, err := NewRegistry(BuiltinRules(BuiltinOptions{})...)
	require.NoError(t, err)
	assert.Equal(t, 8, registry.Len())
}
