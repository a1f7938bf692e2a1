package sync

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/system/events"
)

// ScheduledEntity binds one entity kind to the connector kind and query
// it should be synced from on a recurring schedule.
type ScheduledEntity struct {
	Kind      EntityKind
	Connector events.ConnectorKind
	Query     string
	CronSpec  string
}

// Scheduler submits a sync job for each configured entity kind on its
// own cron schedule, skipping a kind whose previous run is still active.
type Scheduler struct {
	cron     *cron.Cron
	router   *events.JobRouter
	log      *logging.Logger
	entities []ScheduledEntity
	entryIDs []cron.EntryID
}

// NewScheduler builds a scheduler. The cron parser runs with a seconds
// field, matching the ScheduleCron default of "0 */15 * * * *".
func NewScheduler(router *events.JobRouter, log *logging.Logger, entities []ScheduledEntity) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		router:   router,
		log:      log,
		entities: entities,
	}
}

// Start registers every configured entity's cron entry and starts the
// underlying cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, entity := range s.entities {
		entity := entity
		id, err := s.cron.AddFunc(entity.CronSpec, func() {
			s.submit(ctx, entity)
		})
		if err != nil {
			return err
		}
		s.entryIDs = append(s.entryIDs, id)
	}
	s.cron.Start()
	s.log.WithField("entities", len(s.entities)).Info("sync scheduler started")
	return nil
}

// Stop halts the cron loop and waits for any running job to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

func (s *Scheduler) submit(ctx context.Context, entity ScheduledEntity) {
	job, err := s.router.CreateJob(ctx, string(entity.Kind), entity.Connector, map[string]any{
		"query": entity.Query,
	})
	if err != nil {
		s.log.WithField("entity_kind", entity.Kind).WithError(err).Error("failed to create scheduled sync job")
		return
	}

	if err := s.router.SubmitJob(job); err != nil {
		s.log.WithField("entity_kind", entity.Kind).WithError(err).Warn("failed to submit scheduled sync job, skipping this run")
	}
}
