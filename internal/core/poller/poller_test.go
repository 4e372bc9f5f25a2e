package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/jobwatch/internal/adapters/jobsource"
	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

type stubJobSource struct {
	mu      sync.Mutex
	jobs    []alerts.Job
	err     error
	calls   int
	dates   []time.Time
	entered chan struct{}
	hold    chan struct{}
}

func (s *stubJobSource) FetchJobs(ctx context.Context, date time.Time) ([]alerts.Job, error) {
	if s.hold != nil {
		s.entered <- struct{}{}
		<-s.hold
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.dates = append(s.dates, date)
	return s.jobs, s.err
}

func (s *stubJobSource) set(jobs []alerts.Job, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = jobs
	s.err = err
}

type stubLocations struct {
	result map[string]alerts.LocationVerification
	err    error
}

func (s stubLocations) Verify(ctx context.Context, jobs []alerts.Job) (map[string]alerts.LocationVerification, error) {
	return s.result, s.err
}

type memoryStore struct {
	mu       sync.Mutex
	snapshot *alerts.Snapshot
	saves    int
	loadErr  error
}

func (m *memoryStore) Load(ctx context.Context) (*alerts.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, m.loadErr
}

func (m *memoryStore) Save(ctx context.Context, snapshot *alerts.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot
	m.saves++
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	cycles   []alerts.CycleSummary
	failures int
}

func (o *countingObserver) ObserveCycle(summary alerts.CycleSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, summary)
}

func (o *countingObserver) ObserveFetchFailure(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newEngine(t *testing.T) *alerts.Engine {
	t.Helper()
	registry, err := alerts.NewRegistry(alerts.BuiltinRules(alerts.BuiltinOptions{})...)
	require.NoError(t, err)
	engine, err := alerts.NewEngine(registry)
	require.NoError(t, err)
	return engine
}

func openJob(id string) alerts.Job {
	return alerts.Job{ID: id, Status: alerts.StatusEntered, JobDate: time.Now()}
}

func TestNew_Validation(t *testing.T) {
	engine := newEngine(t)

	_, err := New(nil, nil, &stubJobSource{}, testLogger())
	assert.Error(t, err)

	_, err = New(nil, engine, nil, testLogger())
	assert.Error(t, err)

	_, err = New(&Config{Schedule: "not a schedule"}, engine, &stubJobSource{}, testLogger())
	assert.Error(t, err)

	p, err := New(&Config{Schedule: "*/30 * * * * *", Timezone: "Not/AZone"}, engine, &stubJobSource{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, p.timezone)

	require.NotPanics(t, func() {
		p, err = New(&Config{Timezone: "Not/AZone", LookbackDays: -3}, engine, &stubJobSource{}, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, time.UTC, p.timezone)
	assert.Equal(t, 0, p.config.LookbackDays)
}

func TestRunOnce_ReconcilesAndObserves(t *testing.T) {
	engine := newEngine(t)
	source := &stubJobSource{jobs: []alerts.Job{openJob("356001")}}
	store := &memoryStore{}
	observer := &countingObserver{}

	p, err := New(nil, engine, source, testLogger(), WithStateStore(store), WithObserver(observer))
	require.NoError(t, err)

	summary, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
	assert.Len(t, source.dates, 1)
	assert.Len(t, observer.cycles, 1)
	assert.Equal(t, 1, store.saves)
	require.NotNil(t, store.snapshot)
	assert.Len(t, store.snapshot.Alerts, 1)

	status := p.Status()
	assert.NotNil(t, status.LastRun)
	assert.Empty(t, status.LastError)
}

func TestRunOnce_FetchFailureSkipsCycle(t *testing.T) {
	engine := newEngine(t)
	source := &stubJobSource{jobs: []alerts.Job{openJob("1")}}
	observer := &countingObserver{}

	p, err := New(nil, engine, source, testLogger(), WithObserver(observer))
	require.NoError(t, err)

	_, err = p.RunOnce(context.Background())
	require.NoError(t, err)

	source.set(nil, errors.New("upstream unavailable"))
	_, err = p.RunOnce(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, observer.failures)
	assert.Len(t, observer.cycles, 1)
	assert.Len(t, engine.Active(alerts.Filter{}), 1)
	assert.Contains(t, p.Status().LastError, "upstream unavailable")
}

func TestRunOnce_LocationFailureContinues(t *testing.T) {
	engine := newEngine(t)
	source := &stubJobSource{jobs: []alerts.Job{openJob("1")}}

	p, err := New(nil, engine, source, testLogger(), WithLocationSource(stubLocations{err: errors.New("gps down")}))
	require.NoError(t, err)

	summary, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.New)
}

func TestRunOnce_PassesLocations(t *testing.T) {
	engine := newEngine(t)
	job := alerts.Job{ID: "2", Status: alerts.StatusInProgress, TruckID: "T", DriverID: "D", JobDate: time.Now()}
	source := &stubJobSource{jobs: []alerts.Job{job}}
	locations := stubLocations{result: map[string]alerts.LocationVerification{
		"2": {Status: alerts.LocationOffSchedule, Distance: 500, HasTracking: true},
	}}

	p, err := New(nil, engine, source, testLogger(), WithLocationSource(locations))
	require.NoError(t, err)

	summary, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.NewAlerts, 1)
	assert.Equal(t, alerts.RuleLocationMismatch, summary.NewAlerts[0].RuleID)
}

func TestRunOnce_RejectsOverlappingCycles(t *testing.T) {
	engine := newEngine(t)
	source := &stubJobSource{entered: make(chan struct{}), hold: make(chan struct{})}

	p, err := New(nil, engine, source, testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.RunOnce(context.Background())
		done <- err
	}()

	<-source.entered
	_, err = p.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	close(source.hold)
	require.NoError(t, <-done)
}

func TestStart_RestoresStateAndStops(t *testing.T) {
	seed := newEngine(t)
	seed.Reconcile([]alerts.Job{openJob("3")}, nil)
	store := &memoryStore{snapshot: seed.Snapshot()}

	engine := newEngine(t)
	p, err := New(&Config{Schedule: "@every 1h"}, engine, &stubJobSource{}, testLogger(), WithStateStore(store))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))
	assert.Len(t, engine.Active(alerts.Filter{}), 1)
	assert.NotNil(t, p.Status().NextRun)

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
}

// daySource serves a different batch per calendar day
type daySource struct {
	mu    sync.Mutex
	days  map[string][]alerts.Job
	fail  string
	dates []string
}

func (s *daySource) FetchJobs(ctx context.Context, date time.Time) ([]alerts.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := date.Format("2006-01-02")
	s.dates = append(s.dates, day)
	if day == s.fail {
		return nil, errors.New("day unavailable")
	}
	return s.days[day], nil
}

func TestRunOnce_FetchesLookbackWindow(t *testing.T) {
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	twoDaysAgo := now.AddDate(0, 0, -2).Format("2006-01-02")

	source := &daySource{days: map[string][]alerts.Job{
		today:      {openJob("1"), openJob("moved")},
		yesterday:  {openJob("2"), openJob("moved")},
		twoDaysAgo: {openJob("3")},
	}}

	p, err := New(&Config{LookbackDays: 2}, newEngine(t), source, testLogger())
	require.NoError(t, err)

	summary, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{today, yesterday, twoDaysAgo}, source.dates)
	assert.Equal(t, 4, summary.Evaluated)
}

func TestRunOnce_LookbackFailureSkipsCycle(t *testing.T) {
	now := time.Now().UTC()
	source := &daySource{
		days: map[string][]alerts.Job{now.Format("2006-01-02"): {openJob("1")}},
		fail: now.AddDate(0, 0, -1).Format("2006-01-02"),
	}
	observer := &countingObserver{}
	engine := newEngine(t)

	p, err := New(&Config{LookbackDays: 1}, engine, source, testLogger(), WithObserver(observer))
	require.NoError(t, err)

	_, err = p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "day unavailable")
	assert.Equal(t, 1, observer.failures)
	assert.Empty(t, observer.cycles)
	assert.Empty(t, engine.Active(alerts.Filter{}))
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

func TestRunOnce_FileSourceRaisesDateRules(t *testing.T) {
	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`
jobs:
  - job_id: Y1
    status: In Progress
    truck_id: T-1
    driver_id: D-1
    job_date: "%[1]s"
    arrived_at: "%[1]sT08:00:00Z"
  - job_id: Y2
    status: Entered
    truck_id: T-2
    driver_id: D-2
    job_date: "%[1]s"
  - job_id: T1
    status: Entered
    truck_id: T-3
    driver_id: D-3
    job_date: "%[2]s"
    arrived_at: "%[3]s"
`, yesterday, today, now.Add(-5*time.Hour).Format(time.RFC3339))), 0o600))

	source, err := jobsource.NewFileSource(path, time.UTC, nil)
	require.NoError(t, err)

	registry, err := alerts.NewRegistry(alerts.BuiltinRules(alerts.BuiltinOptions{})...)
	require.NoError(t, err)
	engine, err := alerts.NewEngine(registry, alerts.WithClock(utcClock{}))
	require.NoError(t, err)

	p, err := New(&Config{Timezone: "UTC", LookbackDays: 1}, engine, source, nil)
	require.NoError(t, err)

	summary, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Evaluated)

	raised := make(map[string]bool)
	for _, alert := range summary.NewAlerts {
		raised[alert.ID] = true
	}
	assert.True(t, raised[alerts.AlertID(alerts.RuleArrivedNotCompleted, "Y1")])
	assert.True(t, raised[alerts.AlertID(alerts.RuleStalledInProgress, "Y1")])
	assert.True(t, raised[alerts.AlertID(alerts.RuleOverdueNotStarted, "Y2")])
	assert.True(t, raised[alerts.AlertID(alerts.RuleArrivedNotCompleted, "T1")])
	assert.Len(t, summary.NewAlerts, 4)
}
