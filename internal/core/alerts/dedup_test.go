package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicator_Window(t *testing.T) {
	d := NewDeduplicator(0)
	assert.Equal(t, DefaultDedupWindow, d.Window())

	fp := Fingerprint(RuleMissingTruck, "1")
	assert.False(t, d.IsDuplicate(fp, baseTime))

	d.Record(fp, baseTime)
	assert.True(t, d.IsDuplicate(fp, baseTime))
	assert.True(t, d.IsDuplicate(fp, baseTime.Add(DefaultDedupWindow)))
	assert.False(t, d.IsDuplicate(fp, baseTime.Add(DefaultDedupWindow+time.Nanosecond)))
}

func TestDeduplicator_RecordRefreshes(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	d.Record("fp", baseTime)
	d.Record("fp", baseTime.Add(50*time.Second))

	assert.True(t, d.IsDuplicate("fp", baseTime.Add(100*time.Second)))
}

func TestDeduplicator_PurgeExpired(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	d.Record("old", baseTime)
	d.Record("edge", baseTime.Add(30*time.Second))
	d.Record("new", baseTime.Add(90*time.Second))

	removed := d.PurgeExpired(baseTime.Add(90 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, d.Len())
	_, ok := d.Entries()["old"]
	assert.False(t, ok)
}

func TestDeduplicator_LoadCopies(t *testing.T) {
	entries := map[string]time.Time{"fp": baseTime}
	d := NewDeduplicator(time.Minute)
	d.Load(entries)
	entries["other"] = baseTime

	assert.Equal(t, 1, d.Len())
	assert.True(t, d.IsDuplicate("fp", baseTime))
}
