package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Action is the kind of lifecycle transition an Event records
type Action string

const (
	ActionCreated      Action = "created"
	ActionAcknowledged Action = "acknowledged"
	ActionDismissed    Action = "dismissed"
	ActionResolved     Action = "resolved"
)

// Event is one alert lifecycle transition as delivered to history sinks
type Event struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Actor     string    `json:"actor,omitempty"`
	Alert     Alert     `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}

func newEvent(action Action, actor string, alert *Alert, at time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Action:    action,
		Actor:     actor,
		Alert:     alert.clone(),
		Timestamp: at,
	}
}

// Publisher receives lifecycle events from the engine. Implementations must
// not block; the engine calls Publish while a cycle is completing.
type Publisher interface {
	Publish(events ...Event)
}

// Sink is a write-only destination for lifecycle events
type Sink interface {
	Name() string
	Record(ctx context.Context, event Event) error
}

// DispatcherConfig contains configuration for the event dispatcher
type DispatcherConfig struct {
	QueueSize   int
	SinkTimeout time.Duration
}

// Dispatcher delivers engine events to sinks on a background goroutine.
// Sink failures are logged and reported, never returned to the engine.
type Dispatcher struct {
	sinks     []Sink
	queue     chan Event
	timeout   time.Duration
	logger    *logrus.Logger
	onFailure func(sink string, err error)
	onDrop    func(event Event)

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher for the given sinks
func NewDispatcher(config *DispatcherConfig, logger *logrus.Logger, sinks ...Sink) *Dispatcher {
	if config == nil {
		config = &DispatcherConfig{}
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1024
	}
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = 5 * time.Second
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Event, config.QueueSize),
		timeout: config.SinkTimeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// OnFailure registers a callback invoked for every failed sink delivery
func (d *Dispatcher) OnFailure(fn func(sink string, err error)) {
	d.onFailure = fn
}

// OnDrop registers a callback invoked when an event is dropped because the queue is full
func (d *Dispatcher) OnDrop(fn func(event Event)) {
	d.onDrop = fn
}

// Start launches the delivery goroutine
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Publish enqueues events without blocking. Events that do not fit in the
// queue are dropped and logged.
func (d *Dispatcher) Publish(events ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for _, event := range events {
		select {
		case d.queue <- event:
		default:
			d.logger.WithFields(logrus.Fields{
				"event_id": event.ID,
				"action":   event.Action,
				"alert_id": event.Alert.ID,
			}).Warn("History queue full, dropping event")
			if d.onDrop != nil {
				d.onDrop(event)
			}
		}
	}
}

// Close stops accepting events, drains the queue and waits for delivery to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.Start()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := safeRecord(ctx, sink, event)
		cancel()
		if err == nil {
			continue
		}
		d.logger.WithFields(logrus.Fields{
			"sink":     sink.Name(),
			"event_id": event.ID,
			"action":   event.Action,
			"alert_id": event.Alert.ID,
		}).WithError(err).Error("Failed to record alert event")
		if d.onFailure != nil {
			d.onFailure(sink.Name(), err)
		}
	}
}

func safeRecord(ctx context.Context, sink Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Record(ctx, event)
}

// historyRing keeps the most recent lifecycle events in memory
type historyRing struct {
	events []Event
	next   int
	full   bool
}

func newHistoryRing(capacity int) *historyRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &historyRing{events: make([]Event, capacity)}
}

func (r *historyRing) add(events ...Event) {
	for _, e := range events {
		r.events[r.next] = e
		r.next = (r.next + 1) % len(r.events)
		if r.next == 0 {
			r.full = true
		}
	}
}

func (r *historyRing) len() int {
	if r.full {
		return len(r.events)
	}
	return r.next
}

// newest returns up to limit events, newest first. limit <= 0 means all.
func (r *historyRing) newest(limit int) []Event {
	n := r.len()
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}
