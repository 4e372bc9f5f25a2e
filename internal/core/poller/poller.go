package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/core/alerts"
)

// ErrCycleInProgress is returned by RunOnce when another cycle is still running
var ErrCycleInProgress = errors.New("reconciliation cycle already in progress")

// JobSource fetches the batch of jobs scheduled for a day
type JobSource interface {
	FetchJobs(ctx context.Context, date time.Time) ([]alerts.Job, error)
}

// LocationSource verifies truck positions for a batch of jobs
type LocationSource interface {
	Verify(ctx context.Context, jobs []alerts.Job) (map[string]alerts.LocationVerification, error)
}

// StateStore persists engine snapshots between process restarts
type StateStore interface {
	Load(ctx context.Context) (*alerts.Snapshot, error)
	Save(ctx context.Context, snapshot *alerts.Snapshot) error
}

// CycleObserver is notified after every poll attempt
type CycleObserver interface {
	ObserveCycle(summary alerts.CycleSummary)
	ObserveFetchFailure(err error)
}

// Config contains poller configuration
type Config struct {
	Schedule   string        `json:"schedule"`
	Timezone   string        `json:"timezone"`
	Timeout    time.Duration `json:"timeout"`
	RunOnStart bool          `json:"run_on_start"`
	// LookbackDays is how many days before today are fetched alongside it,
	// so jobs left open on earlier days stay under watch
	LookbackDays int `json:"lookback_days"`
}

// Poller drives reconciliation cycles on a cron schedule
type Poller struct {
	config    Config
	engine    *alerts.Engine
	jobs      JobSource
	locations LocationSource
	state     StateStore
	observers []CycleObserver
	timezone  *time.Location
	logger    *logrus.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.RWMutex
	running bool
	cycleMu sync.Mutex
	lastErr error
	lastRun time.Time
}

// Option customizes a poller
type Option func(*Poller)

// WithLocationSource enables per-cycle location verification
func WithLocationSource(source LocationSource) Option {
	return func(p *Poller) {
		p.locations = source
	}
}

// WithStateStore restores the engine on start and saves it after every cycle
func WithStateStore(store StateStore) Option {
	return func(p *Poller) {
		p.state = store
	}
}

// WithObserver registers a cycle observer
func WithObserver(observer CycleObserver) Option {
	return func(p *Poller) {
		if observer != nil {
			p.observers = append(p.observers, observer)
		}
	}
}

// New creates a poller for engine fed by jobs
func New(config *Config, engine *alerts.Engine, jobs JobSource, logger *logrus.Logger, opts ...Option) (*Poller, error) {
	if engine == nil {
		return nil, fmt.Errorf("poller requires an alert engine")
	}
	if jobs == nil {
		return nil, fmt.Errorf("poller requires a job source")
	}

	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LookbackDays < 0 {
		cfg.LookbackDays = 0
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	timezone := time.UTC
	if cfg.Timezone != "" {
		tz, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			logger.WithError(err).Warnf("Invalid timezone %s, using UTC", cfg.Timezone)
		} else {
			timezone = tz
		}
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", cfg.Schedule, err)
	}

	p := &Poller{
		config:   cfg,
		engine:   engine,
		jobs:     jobs,
		timezone: timezone,
		logger:   logger,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithParser(parser),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Start restores persisted state and begins polling
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller is already running")
	}

	p.restore(ctx)

	entryID, err := p.cron.AddFunc(p.config.Schedule, func() {
		if _, err := p.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrCycleInProgress) {
			p.logger.WithError(err).Warn("Scheduled reconciliation cycle failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule poller: %w", err)
	}
	p.entryID = entryID

	p.cron.Start()
	p.running = true

	p.logger.WithFields(logrus.Fields{
		"schedule": p.config.Schedule,
		"timezone": p.timezone.String(),
		"lookback": p.config.LookbackDays,
		"next_run": p.cron.Entry(entryID).Next,
	}).Info("Job poller started")

	if p.config.RunOnStart {
		go func() {
			if _, err := p.RunOnce(context.Background()); err != nil && !errors.Is(err, ErrCycleInProgress) {
				p.logger.WithError(err).Warn("Initial reconciliation cycle failed")
			}
		}()
	}

	return nil
}

// Stop halts the schedule and waits for a running cycle to finish
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is not running")
	}
	p.running = false
	p.mu.Unlock()

	// A running cycle needs p.mu to record its result, so wait unlocked.
	ctx := p.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(p.config.Timeout):
		p.logger.Warn("Timeout waiting for reconciliation cycle to complete")
	}
	p.cron.Remove(p.entryID)

	p.logger.Info("Job poller stopped")

	return nil
}

// IsRunning returns whether the schedule is active
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// RunOnce performs a single reconciliation cycle. A failed job fetch skips
// the cycle entirely: reconciling an empty batch would resolve every alert.
func (p *Poller) RunOnce(ctx context.Context) (alerts.CycleSummary, error) {
	if !p.cycleMu.TryLock() {
		return alerts.CycleSummary{}, ErrCycleInProgress
	}
	defer p.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	jobs, err := p.fetchWindow(ctx, time.Now().In(p.timezone))
	if err != nil {
		p.recordRun(err)
		for _, o := range p.observers {
			o.ObserveFetchFailure(err)
		}
		p.logger.WithError(err).Error("Failed to fetch jobs, skipping cycle")
		return alerts.CycleSummary{}, fmt.Errorf("failed to fetch jobs: %w", err)
	}

	var locations map[string]alerts.LocationVerification
	if p.locations != nil && len(jobs) > 0 {
		locations, err = p.locations.Verify(ctx, jobs)
		if err != nil {
			p.logger.WithError(err).Warn("Location verification failed, continuing without it")
			locations = nil
		}
	}

	summary := p.engine.Reconcile(jobs, locations)
	p.recordRun(nil)

	for _, o := range p.observers {
		o.ObserveCycle(summary)
	}

	if p.state != nil {
		if err := p.state.Save(ctx, p.engine.Snapshot()); err != nil {
			p.logger.WithError(err).Warn("Failed to persist alert engine state")
		}
	}

	p.logger.WithFields(logrus.Fields{
		"jobs":     len(jobs),
		"total":    summary.Total,
		"new":      summary.New,
		"resolved": summary.Resolved,
		"critical": summary.BySeverity[alerts.SeverityCritical],
		"high":     summary.BySeverity[alerts.SeverityHigh],
		"duration": summary.Duration.String(),
	}).Info("Reconciliation cycle completed")

	return summary, nil
}

// fetchWindow fetches today and each lookback day, newest first. A job id
// seen on more than one day keeps its most recent record. Any failed day
// fails the whole window.
func (p *Poller) fetchWindow(ctx context.Context, today time.Time) ([]alerts.Job, error) {
	var jobs []alerts.Job
	seen := make(map[string]struct{})

	for offset := 0; offset <= p.config.LookbackDays; offset++ {
		date := today.AddDate(0, 0, -offset)
		batch, err := p.jobs.FetchJobs(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("jobs for %s: %w", date.Format("2006-01-02"), err)
		}
		for _, job := range batch {
			if job.ID != "" {
				if _, dup := seen[job.ID]; dup {
					continue
				}
				seen[job.ID] = struct{}{}
			}
			jobs = append(jobs, job)
		}
	}

	return jobs, nil
}

// Status describes the poller for the health endpoint
type Status struct {
	Running   bool       `json:"running"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status returns the current poller status
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{Running: p.running, Schedule: p.config.Schedule}
	if !p.lastRun.IsZero() {
		last := p.lastRun
		status.LastRun = &last
	}
	if p.lastErr != nil {
		status.LastError = p.lastErr.Error()
	}
	if p.running {
		if next := p.cron.Entry(p.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

func (p *Poller) recordRun(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastRun = time.Now()
	p.lastErr = err
}

func (p *Poller) restore(ctx context.Context) {
	if p.state == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	snapshot, err := p.state.Load(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Failed to load alert engine state, starting empty")
		return
	}
	if snapshot == nil {
		return
	}
	if err := p.engine.Restore(snapshot); err != nil {
		p.logger.WithError(err).Warn("Discarding persisted alert engine state")
	}
}
