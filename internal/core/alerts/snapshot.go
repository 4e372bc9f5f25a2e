package alerts

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SnapshotVersion is bumped whenever the Snapshot layout changes incompatibly
const SnapshotVersion = 1

// Snapshot is the externalizable engine state: the active set, the
// deduplication table and the absence counters.
type Snapshot struct {
	Version      int                  `json:"version"`
	TakenAt      time.Time            `json:"taken_at"`
	Alerts       []Alert              `json:"alerts"`
	Fingerprints map[string]time.Time `json:"fingerprints"`
	AbsentCycles map[string]int       `json:"absent_cycles,omitempty"`
}

// Snapshot captures the engine state
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &Snapshot{
		Version:      SnapshotVersion,
		TakenAt:      e.clock.Now(),
		Alerts:       make([]Alert, 0, len(e.active)),
		Fingerprints: e.dedup.Entries(),
		AbsentCycles: make(map[string]int, len(e.absent)),
	}
	for _, a := range e.queue.All(nil) {
		snap.Alerts = append(snap.Alerts, a.clone())
	}
	for jobID, n := range e.absent {
		snap.AbsentCycles[jobID] = n
	}
	return snap
}

// Restore replaces the engine state with snap. Fingerprints that have
// already expired are dropped; resolved or malformed alerts are ignored.
func (e *Engine) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.active = make(map[string]*Alert, len(snap.Alerts))
	e.queue = NewPriorityQueue()
	for i := range snap.Alerts {
		a := snap.Alerts[i].clone()
		if a.ID == "" || a.ResolvedAt != nil || a.DismissedAt != nil {
			continue
		}
		e.active[a.ID] = &a
		e.queue.Enqueue(&a)
	}

	e.dedup.Load(snap.Fingerprints)
	purged := e.dedup.PurgeExpired(e.clock.Now())

	e.absent = make(map[string]int, len(snap.AbsentCycles))
	for jobID, n := range snap.AbsentCycles {
		e.absent[jobID] = n
	}
	e.pruneAbsent()

	e.logger.WithFields(logrus.Fields{
		"alerts":       len(e.active),
		"fingerprints": e.dedup.Len(),
		"purged":       purged,
		"taken_at":     snap.TakenAt,
	}).Info("Restored alert engine state")

	return nil
}
