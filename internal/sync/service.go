package sync

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/internal/config"
	"github.com/partshub/runtime/system/events"
)

// Service wraps the job router and cron scheduler as a single
// runtime.Service, so the sync engine starts and stops alongside every
// other registered service under one Manager.
type Service struct {
	router    *events.JobRouter
	scheduler *Scheduler
	log       *logging.Logger
}

// NewService wires connectors, processors, importers, and the pipeline
// into a job router, and schedules one cron entry per configured entity
// kind, using cfg.Sync for connection details and cadence.
func NewService(cfg *config.Config, db *sqlx.DB, store events.JobStore, log *logging.Logger) (*Service, error) {
	router := events.NewJobRouter(events.RouterConfig{
		Store:  store,
		Logger: log,
	})

	guard := NewActiveKindGuard()
	history := NewHistoryRepository(db)

	as400Cfg := ODBCConfig{
		DSN:      cfg.Sync.AS400DSN,
		Database: cfg.Sync.AS400DSN,
	}
	as400Connector := NewAS400Connector(as400Cfg, log)
	as400Pipeline := NewPipeline(PipelineConfig{
		Kind:      events.ConnectorAS400,
		Connector: as400Connector,
		DB:        db,
		Logger:    log,
		History:   history,
		Guard:     guard,
		ChunkSize: cfg.Sync.BatchSize,
	})
	router.RegisterHandler(as400Pipeline)

	fileMakerCfg := ODBCConfig{
		DSN:      cfg.Sync.FileMakerURL,
		Username: cfg.Sync.FileMakerUser,
		Password: cfg.Sync.FileMakerPassword,
		Database: cfg.Sync.FileMakerDB,
	}
	fileMakerConnector := NewFileMakerConnector(fileMakerCfg, log)
	fileMakerPipeline := NewPipeline(PipelineConfig{
		Kind:      events.ConnectorFileMaker,
		Connector: fileMakerConnector,
		DB:        db,
		Logger:    log,
		History:   history,
		Guard:     guard,
		ChunkSize: cfg.Sync.BatchSize,
	})
	router.RegisterHandler(fileMakerPipeline)

	fileConnector := NewFileConnector(FileConnectorConfig{
		Path:   cfg.Sync.FlatFileDir,
		Format: FormatCSV,
	})
	filePipeline := NewPipeline(PipelineConfig{
		Kind:      events.ConnectorFile,
		Connector: fileConnector,
		DB:        db,
		Logger:    log,
		History:   history,
		Guard:     guard,
		ChunkSize: cfg.Sync.BatchSize,
	})
	router.RegisterHandler(filePipeline)

	scheduler := NewScheduler(router, log, []ScheduledEntity{
		{Kind: EntityProduct, Connector: events.ConnectorAS400, Query: "PRODUCTS", CronSpec: cfg.Sync.ScheduleCron},
		{Kind: EntityPricing, Connector: events.ConnectorAS400, Query: "PRICING", CronSpec: cfg.Sync.ScheduleCron},
		{Kind: EntityStock, Connector: events.ConnectorAS400, Query: "STOCK", CronSpec: cfg.Sync.ScheduleCron},
		{Kind: EntityMeasurement, Connector: events.ConnectorFileMaker, Query: "MEASUREMENTS", CronSpec: cfg.Sync.ScheduleCron},
	})

	return &Service{router: router, scheduler: scheduler, log: log}, nil
}

// Name satisfies runtime.Service.
func (s *Service) Name() string { return "sync-engine" }

// Start satisfies runtime.Service: brings up the job router's worker
// pool, then the cron scheduler.
func (s *Service) Start(ctx context.Context) error {
	if err := s.router.Start(ctx); err != nil {
		return err
	}
	return s.scheduler.Start(ctx)
}

// Stop satisfies runtime.Service: stops accepting new scheduled runs
// first, then drains the job router.
func (s *Service) Stop(ctx context.Context) error {
	if err := s.scheduler.Stop(ctx); err != nil {
		s.log.WithError(err).Warn("error stopping sync scheduler")
	}
	s.router.Stop()
	return nil
}

// Ready satisfies runtime.Service: the sync engine is ready once its
// job router is accepting work.
func (s *Service) Ready(ctx context.Context) error {
	if !s.router.Stats().Running {
		return context.DeadlineExceeded
	}
	return nil
}
