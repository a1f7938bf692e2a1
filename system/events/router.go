// Package events also provides the job router used by the sync engine:
// JobRouter manages sync-run lifecycle, ID generation, and dispatch to the
// connector-specific handler responsible for an entity kind, with bounded
// retries on failure.
package events

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/partshub/runtime/infrastructure/logging"
)

// JobStatus represents the status of a sync job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// ConnectorKind identifies the external data source a job pulls from.
type ConnectorKind string

const (
	ConnectorAS400     ConnectorKind = "as400"
	ConnectorFileMaker ConnectorKind = "filemaker"
	ConnectorFile      ConnectorKind = "file"
)

// Job represents a single sync run for one entity kind against one connector.
type Job struct {
	ID          string            `json:"id"`
	EntityKind  string            `json:"entity_kind"`
	Connector   ConnectorKind     `json:"connector"`
	Status      JobStatus         `json:"status"`
	Payload     map[string]any    `json:"payload,omitempty"`
	Result      map[string]any    `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
}

// JobStore persists sync jobs.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	List(ctx context.Context, entityKind string, connector ConnectorKind, status JobStatus, limit int) ([]*Job, error)
	ListPending(ctx context.Context, connector ConnectorKind, limit int) ([]*Job, error)
}

// ConnectorHandler processes jobs for a specific connector kind.
type ConnectorHandler interface {
	// Connector returns the connector kind this handler supports.
	Connector() ConnectorKind

	// ProcessJob runs the extract-process-validate-import pipeline for the job.
	ProcessJob(ctx context.Context, job *Job) error
}

// JobRouter routes sync jobs to the connector handler registered for their kind.
type JobRouter struct {
	handlers map[ConnectorKind]ConnectorHandler
	store    JobStore
	log      *logging.Logger

	pendingQueue chan *Job
	workerCount  int

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// RouterConfig configures the job router.
type RouterConfig struct {
	Store       JobStore
	Logger      *logging.Logger
	QueueSize   int
	WorkerCount int
}

// NewJobRouter creates a new job router.
func NewJobRouter(cfg RouterConfig) *JobRouter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 500
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("sync-router", "info", "json")
	}

	return &JobRouter{
		handlers:     make(map[ConnectorKind]ConnectorHandler),
		store:        cfg.Store,
		log:          cfg.Logger,
		pendingQueue: make(chan *Job, cfg.QueueSize),
		workerCount:  cfg.WorkerCount,
	}
}

// RegisterHandler registers a connector handler.
func (r *JobRouter) RegisterHandler(handler ConnectorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := handler.Connector()
	r.handlers[kind] = handler
	r.log.WithField("connector", kind).Info("connector handler registered")
}

// UnregisterHandler removes a connector handler.
func (r *JobRouter) UnregisterHandler(kind ConnectorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, kind)
}

// Start begins processing jobs.
func (r *JobRouter) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("router already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < r.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(r.doneCh)
	}()

	r.log.WithField("workers", r.workerCount).Info("sync job router started")
	return nil
}

// Stop halts job processing.
func (r *JobRouter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	<-r.doneCh
	r.log.Info("sync job router stopped")
}

// CreateJob creates a new sync job with a unique ID.
func (r *JobRouter) CreateJob(ctx context.Context, entityKind string, connector ConnectorKind, payload map[string]any, opts ...JobOption) (*Job, error) {
	job := &Job{
		ID:          generateJobID(),
		EntityKind:  entityKind,
		Connector:   connector,
		Status:      StatusPending,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
		MaxAttempts: 3,
		Metadata:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(job)
	}

	if r.store != nil {
		if err := r.store.Create(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to store job: %w", err)
		}
	}

	r.log.WithField("job_id", job.ID).
		WithField("entity_kind", entityKind).
		WithField("connector", connector).
		Info("sync job created")

	return job, nil
}

// JobOption configures a job.
type JobOption func(*Job)

// WithMetadata adds metadata to the job.
func WithMetadata(key, value string) JobOption {
	return func(j *Job) {
		if j.Metadata == nil {
			j.Metadata = make(map[string]string)
		}
		j.Metadata[key] = value
	}
}

// WithMaxAttempts sets the maximum retry attempts.
func WithMaxAttempts(n int) JobOption {
	return func(j *Job) { j.MaxAttempts = n }
}

// SubmitJob queues a job for processing.
func (r *JobRouter) SubmitJob(job *Job) error {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("router not running")
	}

	select {
	case r.pendingQueue <- job:
		return nil
	default:
		return fmt.Errorf("job queue full")
	}
}

// ProcessJobSync processes a job synchronously.
func (r *JobRouter) ProcessJobSync(ctx context.Context, job *Job) error {
	r.mu.RLock()
	handler, ok := r.handlers[job.Connector]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no handler for connector: %s", job.Connector)
	}

	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = time.Now().UTC()

	if r.store != nil {
		if err := r.store.Update(ctx, job); err != nil {
			r.log.WithError(err).Warn("failed to update job status")
		}
	}

	if err := handler.ProcessJob(ctx, job); err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		job.UpdatedAt = time.Now().UTC()
		now := time.Now().UTC()
		job.CompletedAt = &now

		if r.store != nil {
			r.store.Update(ctx, job)
		}

		return err
	}

	job.Status = StatusSucceeded
	job.UpdatedAt = time.Now().UTC()
	now := time.Now().UTC()
	job.CompletedAt = &now

	if r.store != nil {
		r.store.Update(ctx, job)
	}

	return nil
}

// GetJob retrieves a job by ID.
func (r *JobRouter) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if r.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	return r.store.Get(ctx, jobID)
}

// ListJobs lists jobs with filters.
func (r *JobRouter) ListJobs(ctx context.Context, entityKind string, connector ConnectorKind, status JobStatus, limit int) ([]*Job, error) {
	if r.store == nil {
		return nil, fmt.Errorf("no store configured")
	}
	return r.store.List(ctx, entityKind, connector, status, limit)
}

// worker processes jobs from the queue, requeuing failed jobs while attempts remain.
func (r *JobRouter) worker(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case job := <-r.pendingQueue:
			if err := r.ProcessJobSync(ctx, job); err != nil {
				r.log.WithField("job_id", job.ID).
					WithError(err).
					Error("sync job failed")

				if job.Attempts < job.MaxAttempts {
					job.Status = StatusPending
					r.SubmitJob(job)
				}
			}
		}
	}
}

// generateJobID generates a unique job ID.
func generateJobID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("job_%s_%d", hex.EncodeToString(b[:8]), time.Now().UnixNano()%1000000)
}

// RouterStats holds router statistics.
type RouterStats struct {
	Running       bool `json:"running"`
	HandlersCount int  `json:"handlers_count"`
	QueueSize     int  `json:"queue_size"`
	QueueCapacity int  `json:"queue_capacity"`
}

// Stats returns router statistics.
func (r *JobRouter) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		Running:       r.running,
		HandlersCount: len(r.handlers),
		QueueSize:     len(r.pendingQueue),
		QueueCapacity: cap(r.pendingQueue),
	}
}
