package alerts

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(events ...Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Action)
	}
	return out
}

// stubRule is a configurable rule used to exercise the engine without the built-ins
type stubRule struct {
	id       string
	severity Severity
	match    func(ec EvalContext) (bool, error)
	render   func(ec EvalContext) (string, error)
}

func (r stubRule) ID() string         { return r.id }
func (r stubRule) Name() string       { return "stub " + r.id }
func (r stubRule) Severity() Severity { return r.severity }

func (r stubRule) Matches(ec EvalContext) (bool, error) {
	if r.match == nil {
		return true, nil
	}
	return r.match(ec)
}

func (r stubRule) Render(ec EvalContext) (string, error) {
	if r.render == nil {
		return "stub alert for " + ec.Job.ID, nil
	}
	return r.render(ec)
}

var errStub = errors.New("stub failure")

func timePtr(t time.Time) *time.Time {
	return &t
}

func enteredJob(id string) Job {
	return Job{ID: id, Status: StatusEntered, JobDate: baseTime}
}

func assignedJob(id string) Job {
	return Job{ID: id, Status: StatusEntered, TruckID: "T-1", DriverID: "D-1", JobDate: baseTime}
}

func newTestEngine(t *testing.T, rules []Rule, opts ...EngineOption) (*Engine, *fakeClock, *recordingPublisher) {
	t.Helper()

	registry, err := NewRegistry(rules...)
	require.NoError(t, err)

	clock := newFakeClock(baseTime)
	pub := &recordingPublisher{}
	opts = append([]EngineOption{WithClock(clock), WithPublisher(pub)}, opts...)

	engine, err := NewEngine(registry, opts...)
	require.NoError(t, err)
	return engine, clock, pub
}

func builtinEngine(t *testing.T, opts ...EngineOption) (*Engine, *fakeClock, *recordingPublisher) {
	return newTestEngine(t, BuiltinRules(BuiltinOptions{}), opts...)
}

func alertIDs(list []Alert) []string {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids
}
