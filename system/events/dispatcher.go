// Package events provides the in-process event bus used to fan out chat and
// sync-engine occurrences (message posted, member joined, sync run
// completed) to interested handlers without coupling producers to consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/partshub/runtime/infrastructure/logging"
)

// Event represents a single occurrence published to the bus.
type Event struct {
	Topic     string         `json:"topic"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventHandler processes events.
type EventHandler interface {
	// HandleEvent processes an event. Returns error if processing fails
	// (the event is not retried; failures are logged and counted).
	HandleEvent(ctx context.Context, event *Event) error

	// SupportedTopics returns the list of topics this handler supports.
	SupportedTopics() []string

	// SupportedSources returns the list of sources this handler supports.
	// Empty slice means all sources.
	SupportedSources() []string
}

// EventFilter defines criteria for filtering events.
type EventFilter struct {
	Sources []string // sources to match (empty = all)
	Topics  []string // topics to match (empty = all)
}

// Match checks if an event matches this filter.
func (f *EventFilter) Match(event *Event) bool {
	if len(f.Sources) > 0 {
		matched := false
		for _, s := range f.Sources {
			if strings.EqualFold(s, event.Source) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.Topics) > 0 {
		matched := false
		for _, t := range f.Topics {
			if strings.EqualFold(t, event.Topic) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// HandlerRegistration holds a handler and its filter.
type HandlerRegistration struct {
	ID      string
	Handler EventHandler
	Filter  *EventFilter
}

// Dispatcher routes published events to registered handlers, either
// synchronously (DispatchSync) or via a buffered worker pool (Dispatch).
type Dispatcher struct {
	handlers map[string]*HandlerRegistration
	log      *logging.Logger

	eventQueue chan *Event
	queueSize  int

	eventsProcessed int64
	eventsDropped   int64
	eventsFailed    int64

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// DispatcherConfig configures the event dispatcher.
type DispatcherConfig struct {
	QueueSize   int
	WorkerCount int
	Logger      *logging.Logger
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("events", "info", "json")
	}

	return &Dispatcher{
		handlers:   make(map[string]*HandlerRegistration),
		log:        cfg.Logger,
		eventQueue: make(chan *Event, cfg.QueueSize),
		queueSize:  cfg.QueueSize,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// RegisterHandler registers an event handler.
func (d *Dispatcher) RegisterHandler(id string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	filter := &EventFilter{
		Sources: handler.SupportedSources(),
		Topics:  handler.SupportedTopics(),
	}

	d.handlers[id] = &HandlerRegistration{
		ID:      id,
		Handler: handler,
		Filter:  filter,
	}

	d.log.WithField("handler_id", id).
		WithField("topics", filter.Topics).
		WithField("sources", filter.Sources).
		Info("event handler registered")
}

// UnregisterHandler removes an event handler.
func (d *Dispatcher) UnregisterHandler(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, id)
	d.log.WithField("handler_id", id).Info("event handler unregistered")
}

// Start begins processing events.
func (d *Dispatcher) Start(ctx context.Context, workerCount int) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	if workerCount <= 0 {
		workerCount = 4
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			d.worker(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(d.doneCh)
	}()

	d.log.WithField("workers", workerCount).Info("event dispatcher started")
	return nil
}

// Stop halts event processing.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	<-d.doneCh
	d.log.Info("event dispatcher stopped")
}

// Dispatch queues an event for async processing. Publish is fire-and-forget:
// callers that need the result should use DispatchSync instead.
func (d *Dispatcher) Dispatch(event *Event) error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		return fmt.Errorf("dispatcher not running")
	}

	select {
	case d.eventQueue <- event:
		return nil
	default:
		d.mu.Lock()
		d.eventsDropped++
		d.mu.Unlock()
		return fmt.Errorf("event queue full, event dropped")
	}
}

// DispatchSync processes an event synchronously against all matching handlers.
func (d *Dispatcher) DispatchSync(ctx context.Context, event *Event) []error {
	d.mu.RLock()
	handlers := make([]*HandlerRegistration, 0, len(d.handlers))
	for _, h := range d.handlers {
		handlers = append(handlers, h)
	}
	d.mu.RUnlock()

	var errs []error
	for _, reg := range handlers {
		if reg.Filter.Match(event) {
			if err := reg.Handler.HandleEvent(ctx, event); err != nil {
				errs = append(errs, fmt.Errorf("handler %s: %w", reg.ID, err))
			}
		}
	}

	return errs
}

// worker processes events from the queue.
func (d *Dispatcher) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case event := <-d.eventQueue:
			d.processEvent(ctx, event)
		}
	}
}

// processEvent dispatches an event to matching handlers, isolating one
// handler's failure from the rest.
func (d *Dispatcher) processEvent(ctx context.Context, event *Event) {
	d.mu.RLock()
	handlers := make([]*HandlerRegistration, 0)
	for _, h := range d.handlers {
		if h.Filter.Match(event) {
			handlers = append(handlers, h)
		}
	}
	d.mu.RUnlock()

	for _, reg := range handlers {
		if err := reg.Handler.HandleEvent(ctx, event); err != nil {
			d.mu.Lock()
			d.eventsFailed++
			d.mu.Unlock()

			d.log.WithField("handler_id", reg.ID).
				WithField("topic", event.Topic).
				WithField("source", event.Source).
				WithError(err).
				Error("event handler failed")
		}
	}

	d.mu.Lock()
	d.eventsProcessed++
	d.mu.Unlock()
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStats{
		Running:         d.running,
		HandlersCount:   len(d.handlers),
		QueueSize:       len(d.eventQueue),
		QueueCapacity:   d.queueSize,
		EventsProcessed: d.eventsProcessed,
		EventsDropped:   d.eventsDropped,
		EventsFailed:    d.eventsFailed,
	}
}

// DispatcherStats holds dispatcher metrics.
type DispatcherStats struct {
	Running         bool  `json:"running"`
	HandlersCount   int   `json:"handlers_count"`
	QueueSize       int   `json:"queue_size"`
	QueueCapacity   int   `json:"queue_capacity"`
	EventsProcessed int64 `json:"events_processed"`
	EventsDropped   int64 `json:"events_dropped"`
	EventsFailed    int64 `json:"events_failed"`
}

// ParsePayload parses an event payload from various wire formats.
func ParsePayload(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case []byte:
		var result map[string]any
		if err := json.Unmarshal(v, &result); err != nil {
			return nil, err
		}
		return result, nil
	case string:
		var result map[string]any
		if err := json.Unmarshal([]byte(v), &result); err != nil {
			return nil, err
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported payload type: %T", raw)
	}
}
