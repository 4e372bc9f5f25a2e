package alerts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestore_ContinuesWithoutDuplicates(t *testing.T) {
	engine, clock, _ := builtinEngine(t)
	jobs := []Job{enteredJob("1601"), enteredJob("1602")}
	engine.Reconcile(jobs, nil)
	require.True(t, engine.Acknowledge(AlertID(RuleMissingTruck, "1601"), "ops"))

	raw, err := json.Marshal(engine.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))

	restored, restoredClock, pub := builtinEngine(t)
	restoredClock.Advance(time.Minute)
	clock.Advance(time.Minute)
	require.NoError(t, restored.Restore(&snap))

	summary := restored.Reconcile(jobs, nil)
	assert.Equal(t, 0, summary.New)
	assert.Equal(t, 2, summary.Total)
	assert.Empty(t, pub.Actions())

	alert, ok := restored.Get(AlertID(RuleMissingTruck, "1601"))
	require.True(t, ok)
	assert.True(t, alert.Acknowledged)
	assert.Equal(t, engine.Active(Filter{}), restored.Active(Filter{}))
}

func TestRestore_DropsExpiredFingerprints(t *testing.T) {
	engine, _, _ := builtinEngine(t)
	engine.Reconcile([]Job{enteredJob("1701")}, nil)
	require.True(t, engine.Dismiss(AlertID(RuleMissingTruck, "1701"), "ops"))
	snap := engine.Snapshot()
	assert.Empty(t, snap.Alerts)
	assert.Len(t, snap.Fingerprints, 1)

	restored, clock, _ := builtinEngine(t)
	clock.Advance(DefaultDedupWindow + time.Minute)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, 0, restored.Statistics().DedupEntries)

	summary := restored.Reconcile([]Job{enteredJob("1701")}, nil)
	assert.Equal(t, 1, summary.New)
}

func TestRestore_RejectsBadSnapshots(t *testing.T) {
	engine, _, _ := builtinEngine(t)
	assert.Error(t, engine.Restore(nil))
	assert.Error(t, engine.Restore(&Snapshot{Version: SnapshotVersion + 1}))
}
