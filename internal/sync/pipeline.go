package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/partshub/runtime/infrastructure/errors"
	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/pkg/metrics"
	"github.com/partshub/runtime/system/events"
)

// DefaultChunkSize is the number of records processed per chunk when a
// job's payload doesn't override it.
const DefaultChunkSize = 1000

// PipelineResult reports the aggregate outcome of running one sync job,
// mirroring the phase-by-phase timing the original pipeline reported.
type PipelineResult struct {
	EntityKind        EntityKind    `json:"entity_kind"`
	RecordsExtracted  int           `json:"records_extracted"`
	RecordsProcessed  int           `json:"records_processed"`
	RecordsValidated  int           `json:"records_validated"`
	RecordsCreated    int           `json:"records_created"`
	RecordsUpdated    int           `json:"records_updated"`
	RecordsWithErrors int           `json:"records_with_errors"`
	DryRun            bool          `json:"dry_run"`
	ExtractTime       time.Duration `json:"extract_time"`
	ProcessTime       time.Duration `json:"process_time"`
	ValidateTime      time.Duration `json:"validate_time"`
	ImportTime        time.Duration `json:"import_time"`
	TotalTime         time.Duration `json:"total_time"`
}

// ActiveKindGuard tracks which entity kinds currently have a run in
// flight, so Pipeline.ProcessJob can reject a duplicate run for a kind
// that hasn't finished yet.
type ActiveKindGuard struct {
	active map[EntityKind]struct{}
}

// NewActiveKindGuard builds an empty guard.
func NewActiveKindGuard() *ActiveKindGuard {
	return &ActiveKindGuard{active: make(map[EntityKind]struct{})}
}

// TryAcquire marks kind active and reports true, or reports false if
// kind is already active.
func (g *ActiveKindGuard) TryAcquire(kind EntityKind) bool {
	if _, busy := g.active[kind]; busy {
		return false
	}
	g.active[kind] = struct{}{}
	return true
}

// Release marks kind no longer active.
func (g *ActiveKindGuard) Release(kind EntityKind) {
	delete(g.active, kind)
}

// Pipeline runs one entity kind's extract→process→validate→import cycle
// in sequential chunks against a single connector. It implements
// events.ConnectorHandler so it can be registered directly with a
// JobRouter.
type Pipeline struct {
	kind          events.ConnectorKind
	connector     Connector
	db            *sqlx.DB
	log           *logging.Logger
	history       *HistoryRepository
	guard         *ActiveKindGuard
	knownCurrency map[string]bool
	chunkSize     int
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Kind            events.ConnectorKind
	Connector       Connector
	DB              *sqlx.DB
	Logger          *logging.Logger
	History         *HistoryRepository
	Guard           *ActiveKindGuard
	KnownCurrencies map[string]bool
	ChunkSize       int
}

// NewPipeline builds a pipeline bound to one connector.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Pipeline{
		kind:          cfg.Kind,
		connector:     cfg.Connector,
		db:            cfg.DB,
		log:           cfg.Logger,
		history:       cfg.History,
		guard:         cfg.Guard,
		knownCurrency: cfg.KnownCurrencies,
		chunkSize:     cfg.ChunkSize,
	}
}

// Connector reports the connector kind this pipeline handles, satisfying
// events.ConnectorHandler.
func (p *Pipeline) Connector() events.ConnectorKind {
	return p.kind
}

// ProcessJob runs the pipeline for one job, satisfying
// events.ConnectorHandler. The job's payload carries the query/source,
// chunk-size override, and dry-run flag.
func (p *Pipeline) ProcessJob(ctx context.Context, job *events.Job) error {
	kind := EntityKind(job.EntityKind)

	if p.guard != nil {
		if !p.guard.TryAcquire(kind) {
			return errors.Conflict("a sync run for entity kind " + job.EntityKind + " is already active")
		}
		defer p.guard.Release(kind)
	}

	query, _ := job.Payload["query"].(string)
	dryRun, _ := job.Payload["dry_run"].(bool)
	chunkSize := p.chunkSize
	if cs, ok := job.Payload["chunk_size"].(int); ok && cs > 0 {
		chunkSize = cs
	}

	result, err := p.Run(ctx, kind, query, chunkSize, dryRun)
	if job.Result == nil {
		job.Result = make(map[string]any)
	}
	job.Result["records_extracted"] = result.RecordsExtracted
	job.Result["records_created"] = result.RecordsCreated
	job.Result["records_updated"] = result.RecordsUpdated
	job.Result["records_with_errors"] = result.RecordsWithErrors
	return err
}

// Run extracts every record for kind from the bound connector, then
// processes it in sequential chunks through process→validate→import,
// always closing the connector on the way out regardless of outcome.
func (p *Pipeline) Run(ctx context.Context, kind EntityKind, query string, chunkSize int, dryRun bool) (result PipelineResult, err error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	result = PipelineResult{EntityKind: kind, DryRun: dryRun}
	start := time.Now()

	defer func() {
		metrics.RecordSyncPipelineRun(string(p.kind), string(kind), time.Since(start), err)
		metrics.RecordSyncRecords(string(kind), result.RecordsCreated, result.RecordsUpdated, result.RecordsWithErrors)
	}()

	historyID := uuid.NewString()
	if p.history != nil {
		_ = p.history.Create(ctx, &SyncHistory{
			ID:            historyID,
			EntityKind:    kind,
			ConnectorKind: string(p.kind),
			Status:        "running",
			StartedAt:     start,
		})
	}

	defer func() {
		result.TotalTime = time.Since(start)
		_ = p.connector.Close(ctx)
	}()

	if err := p.connector.Connect(ctx); err != nil {
		p.failHistory(ctx, historyID, err)
		return result, err
	}

	extractStart := time.Now()
	records, err := p.connector.Extract(ctx, query, 0)
	result.ExtractTime = time.Since(extractStart)
	if err != nil {
		p.failHistory(ctx, historyID, err)
		return result, err
	}
	result.RecordsExtracted = len(records)

	processor, err := processorFor(kind, p.log)
	if err != nil {
		p.failHistory(ctx, historyID, err)
		return result, err
	}

	var importer Importer
	if !dryRun {
		importer, err = ImporterFor(kind, p.db, p.log, p.knownCurrency)
		if err != nil {
			p.failHistory(ctx, historyID, err)
			return result, err
		}
	}

	for chunkStart := 0; chunkStart < len(records); chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(records) {
			chunkEnd = len(records)
		}
		chunk := records[chunkStart:chunkEnd]

		processStart := time.Now()
		processed, processErrs := processor.Process(chunk)
		result.ProcessTime += time.Since(processStart)
		result.RecordsProcessed += len(processed)
		result.RecordsWithErrors += len(processErrs)

		validateStart := time.Now()
		validated, validateErrs := processor.Validate(processed)
		result.ValidateTime += time.Since(validateStart)
		result.RecordsValidated += len(validated)
		result.RecordsWithErrors += len(validateErrs)

		if dryRun || len(validated) == 0 {
			continue
		}

		importStart := time.Now()
		stats, err := importer.Import(ctx, validated)
		result.ImportTime += time.Since(importStart)
		if err != nil {
			p.failHistory(ctx, historyID, err)
			return result, err
		}
		result.RecordsCreated += stats.Created
		result.RecordsUpdated += stats.Updated
		result.RecordsWithErrors += stats.Errors
	}

	status := "completed"
	if result.RecordsWithErrors > 0 {
		status = "completed_with_errors"
	}
	if p.history != nil {
		_ = p.history.UpdateStatus(ctx, historyID, status, result.RecordsCreated, result.RecordsUpdated, result.RecordsWithErrors, "")
	}

	p.log.WithField("entity_kind", kind).
		WithField("extracted", result.RecordsExtracted).
		WithField("created", result.RecordsCreated).
		WithField("updated", result.RecordsUpdated).
		WithField("errors", result.RecordsWithErrors).
		Info("sync run complete")

	return result, nil
}

func (p *Pipeline) failHistory(ctx context.Context, historyID string, err error) {
	if p.history == nil {
		return
	}
	_ = p.history.UpdateStatus(ctx, historyID, "failed", 0, 0, 0, err.Error())
}

// processorFor resolves the processor responsible for an entity kind
// using default configuration; callers needing custom field mappings
// should build a processor directly with NewBaseProcessor instead of
// going through the pipeline's ProcessJob path.
func processorFor(kind EntityKind, log *logging.Logger) (Processor, error) {
	cfg := DefaultProcessorConfig()
	switch kind {
	case EntityProduct:
		cfg.RequiredFields = []string{"part_number"}
		return NewProductProcessor(cfg, log), nil
	case EntityPricing:
		cfg.RequiredFields = []string{"part_number", "price_type_code"}
		return NewPricingProcessor(cfg, log), nil
	case EntityStock:
		cfg.RequiredFields = []string{"part_number", "warehouse_id"}
		return NewInventoryProcessor(cfg, log, time.Now), nil
	case EntityMeasurement:
		cfg.RequiredFields = []string{"part_number"}
		return NewBaseProcessor(cfg, log, nil), nil
	default:
		return nil, errors.InvalidInput("entity_kind", "unsupported entity kind: "+string(kind))
	}
}
