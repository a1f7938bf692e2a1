package sync

import (
	"context"
	"testing"
	"time"

	"github.com/partshub/runtime/system/events"
)

// fakeJobStore is a minimal in-memory events.JobStore used to drive the
// router/scheduler without a real database.
type fakeJobStore struct {
	jobs map[string]*events.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*events.Job)}
}

func (s *fakeJobStore) Create(ctx context.Context, job *events.Job) error {
	s.jobs[job.ID] = job
	return nil
}
func (s *fakeJobStore) Get(ctx context.Context, id string) (*events.Job, error) {
	return s.jobs[id], nil
}
func (s *fakeJobStore) Update(ctx context.Context, job *events.Job) error {
	s.jobs[job.ID] = job
	return nil
}
func (s *fakeJobStore) List(ctx context.Context, entityKind string, connector events.ConnectorKind, status events.JobStatus, limit int) ([]*events.Job, error) {
	return nil, nil
}
func (s *fakeJobStore) ListPending(ctx context.Context, connector events.ConnectorKind, limit int) ([]*events.Job, error) {
	return nil, nil
}

func TestScheduler_StartRegistersOneCronEntryPerEntity(t *testing.T) {
	router := events.NewJobRouter(events.RouterConfig{Store: newFakeJobStore(), Logger: testLogger()})

	entities := []ScheduledEntity{
		{Kind: EntityProduct, Connector: events.ConnectorAS400, Query: "PRODUCTS", CronSpec: "0 */15 * * * *"},
		{Kind: EntityMeasurement, Connector: events.ConnectorFileMaker, Query: "PRODUCT_MEASUREMENTS", CronSpec: "0 0 * * * *"},
	}

	s := NewScheduler(router, testLogger(), entities)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())

	if len(s.entryIDs) != len(entities) {
		t.Fatalf("expected %d cron entries, got %d", len(entities), len(s.entryIDs))
	}
}

func TestScheduler_StartRejectsInvalidCronSpec(t *testing.T) {
	router := events.NewJobRouter(events.RouterConfig{Store: newFakeJobStore(), Logger: testLogger()})
	entities := []ScheduledEntity{{Kind: EntityProduct, Connector: events.ConnectorAS400, Query: "PRODUCTS", CronSpec: "not-a-cron-spec"}}

	s := NewScheduler(router, testLogger(), entities)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected invalid cron spec to error")
	}
}

func TestScheduler_Stop_CompletesWithinTimeout(t *testing.T) {
	router := events.NewJobRouter(events.RouterConfig{Store: newFakeJobStore(), Logger: testLogger()})
	s := NewScheduler(router, testLogger(), nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
