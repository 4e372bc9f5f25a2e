package alerts

import "time"

// DefaultDedupWindow is how long a recorded fingerprint suppresses new alerts
const DefaultDedupWindow = 5 * time.Minute

// Deduplicator suppresses alert creation for fingerprints recorded within a
// sliding window. Every Record refreshes the window for that fingerprint.
// It is not safe for concurrent use; the engine serializes access.
type Deduplicator struct {
	seen   map[string]time.Time
	window time.Duration
}

// NewDeduplicator creates a deduplicator with the given window.
// A non-positive window falls back to DefaultDedupWindow.
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Deduplicator{
		seen:   make(map[string]time.Time),
		window: window,
	}
}

// Window returns the configured window
func (d *Deduplicator) Window() time.Duration {
	return d.window
}

// IsDuplicate reports whether fp was recorded within the window ending at now
func (d *Deduplicator) IsDuplicate(fp string, now time.Time) bool {
	last, ok := d.seen[fp]
	if !ok {
		return false
	}
	return now.Sub(last) <= d.window
}

// Record marks fp as seen at now
func (d *Deduplicator) Record(fp string, now time.Time) {
	d.seen[fp] = now
}

// PurgeExpired deletes every entry older than the window and returns how many were removed
func (d *Deduplicator) PurgeExpired(now time.Time) int {
	removed := 0
	for fp, last := range d.seen {
		if now.Sub(last) > d.window {
			delete(d.seen, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries
func (d *Deduplicator) Len() int {
	return len(d.seen)
}

// Entries returns a copy of the fingerprint table
func (d *Deduplicator) Entries() map[string]time.Time {
	out := make(map[string]time.Time, len(d.seen))
	for fp, last := range d.seen {
		out[fp] = last
	}
	return out
}

// Load replaces the fingerprint table
func (d *Deduplicator) Load(entries map[string]time.Time) {
	d.seen = make(map[string]time.Time, len(entries))
	for fp, last := range entries {
		d.seen[fp] = last
	}
}
