package events

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestJobRouter_Creation(t *testing.T) {
	r := NewJobRouter(RouterConfig{
		QueueSize:   100,
		WorkerCount: 2,
	})

	if r == nil {
		t.Fatal("expected router, got nil")
	}

	stats := r.Stats()
	if stats.QueueCapacity != 100 {
		t.Errorf("expected queue capacity 100, got %d", stats.QueueCapacity)
	}
}

func TestJobRouter_RegisterHandler(t *testing.T) {
	r := NewJobRouter(RouterConfig{})

	handler := &testConnectorHandler{
		connector: ConnectorAS400,
	}

	r.RegisterHandler(handler)

	stats := r.Stats()
	if stats.HandlersCount != 1 {
		t.Errorf("expected 1 handler, got %d", stats.HandlersCount)
	}
}

func TestJobRouter_CreateJob(t *testing.T) {
	r := NewJobRouter(RouterConfig{})

	ctx := context.Background()
	job, err := r.CreateJob(ctx, "product", ConnectorAS400, map[string]any{
		"table": "ITMMAST",
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job == nil {
		t.Fatal("expected job, got nil")
	}

	if job.EntityKind != "product" {
		t.Errorf("expected entity_kind 'product', got '%s'", job.EntityKind)
	}

	if job.Connector != ConnectorAS400 {
		t.Errorf("expected connector 'as400', got '%s'", job.Connector)
	}

	if job.Status != StatusPending {
		t.Errorf("expected status 'pending', got '%s'", job.Status)
	}

	if !strings.HasPrefix(job.ID, "job_") {
		t.Errorf("expected ID to start with 'job_', got '%s'", job.ID)
	}
}

func TestJobRouter_CreateJobWithOptions(t *testing.T) {
	r := NewJobRouter(RouterConfig{})

	ctx := context.Background()
	job, err := r.CreateJob(ctx, "inventory", ConnectorFileMaker, map[string]any{
		"layout": "Inventory",
	},
		WithMetadata("triggered_by", "scheduler"),
		WithMaxAttempts(5),
	)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Metadata["triggered_by"] != "scheduler" {
		t.Errorf("expected metadata triggered_by 'scheduler', got '%s'", job.Metadata["triggered_by"])
	}

	if job.MaxAttempts != 5 {
		t.Errorf("expected max_attempts 5, got %d", job.MaxAttempts)
	}
}

func TestJobRouter_ProcessJobSync(t *testing.T) {
	r := NewJobRouter(RouterConfig{})

	processed := false
	handler := &testConnectorHandler{
		connector: ConnectorAS400,
		processFunc: func(ctx context.Context, job *Job) error {
			processed = true
			return nil
		},
	}

	r.RegisterHandler(handler)

	ctx := context.Background()
	job, _ := r.CreateJob(ctx, "product", ConnectorAS400, nil)

	err := r.ProcessJobSync(ctx, job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !processed {
		t.Error("expected handler to process job")
	}

	if job.Status != StatusSucceeded {
		t.Errorf("expected status 'succeeded', got '%s'", job.Status)
	}

	if job.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", job.Attempts)
	}
}

func TestJobRouter_ProcessJobSync_NoHandler(t *testing.T) {
	r := NewJobRouter(RouterConfig{})

	ctx := context.Background()
	job, _ := r.CreateJob(ctx, "product", ConnectorAS400, nil)

	err := r.ProcessJobSync(ctx, job)
	if err == nil {
		t.Error("expected error for missing handler")
	}
}

func TestJobRouter_StartStop(t *testing.T) {
	r := NewJobRouter(RouterConfig{
		QueueSize:   10,
		WorkerCount: 2,
	})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("failed to start: %v", err)
	}

	job := &Job{
		ID:        "test-job",
		Connector: ConnectorAS400,
		Status:    StatusPending,
	}
	if err := r.SubmitJob(job); err != nil {
		t.Errorf("submit failed while running: %v", err)
	}

	r.Stop()

	if err := r.SubmitJob(job); err == nil {
		t.Error("expected error after stop")
	}
}

func TestJobRouter_AsyncProcessing(t *testing.T) {
	store := newMemoryJobStore()
	r := NewJobRouter(RouterConfig{
		Store:       store,
		QueueSize:   100,
		WorkerCount: 2,
	})

	processedCount := 0
	handler := &testConnectorHandler{
		connector: ConnectorAS400,
		processFunc: func(ctx context.Context, job *Job) error {
			processedCount++
			return nil
		},
	}

	r.RegisterHandler(handler)

	ctx := context.Background()
	r.Start(ctx)
	defer r.Stop()

	for i := 0; i < 5; i++ {
		job, _ := r.CreateJob(ctx, "product", ConnectorAS400, nil)
		r.SubmitJob(job)
	}

	time.Sleep(100 * time.Millisecond)

	if processedCount != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processedCount)
	}
}

func TestJobStatus_Values(t *testing.T) {
	statuses := []JobStatus{
		StatusPending,
		StatusRunning,
		StatusSucceeded,
		StatusFailed,
		StatusCancelled,
	}

	expected := []string{"pending", "running", "succeeded", "failed", "cancelled"}

	for i, s := range statuses {
		if string(s) != expected[i] {
			t.Errorf("expected status '%s', got '%s'", expected[i], s)
		}
	}
}

func TestConnectorKind_Values(t *testing.T) {
	kinds := []ConnectorKind{
		ConnectorAS400,
		ConnectorFileMaker,
		ConnectorFile,
	}

	expected := []string{"as400", "filemaker", "file"}

	for i, k := range kinds {
		if string(k) != expected[i] {
			t.Errorf("expected kind '%s', got '%s'", expected[i], k)
		}
	}
}

// Test helpers

type testConnectorHandler struct {
	connector   ConnectorKind
	processFunc func(ctx context.Context, job *Job) error
}

func (h *testConnectorHandler) Connector() ConnectorKind {
	return h.connector
}

func (h *testConnectorHandler) ProcessJob(ctx context.Context, job *Job) error {
	if h.processFunc != nil {
		return h.processFunc(ctx, job)
	}
	return nil
}

// In-memory job store for testing
type memoryJobStore struct {
	jobs map[string]*Job
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{
		jobs: make(map[string]*Job),
	}
}

func (s *memoryJobStore) Create(ctx context.Context, job *Job) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryJobStore) Get(ctx context.Context, id string) (*Job, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	return nil, nil
}

func (s *memoryJobStore) Update(ctx context.Context, job *Job) error {
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryJobStore) List(ctx context.Context, entityKind string, connector ConnectorKind, status JobStatus, limit int) ([]*Job, error) {
	var result []*Job
	for _, job := range s.jobs {
		if entityKind != "" && job.EntityKind != entityKind {
			continue
		}
		if connector != "" && job.Connector != connector {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		result = append(result, job)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *memoryJobStore) ListPending(ctx context.Context, connector ConnectorKind, limit int) ([]*Job, error) {
	return s.List(ctx, "", connector, StatusPending, limit)
}
