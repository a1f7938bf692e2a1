package sync

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/partshub/runtime/infrastructure/errors"
)

// EnsureSchema creates the destination catalog tables and the sync-history
// tables the importers and pipeline rely on, the same bootstrap approach
// used by the chat repositories.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			part_number TEXT PRIMARY KEY,
			part_number_stripped TEXT NOT NULL DEFAULT '',
			application TEXT NOT NULL DEFAULT '',
			vintage BOOLEAN NOT NULL DEFAULT false,
			late_model BOOLEAN NOT NULL DEFAULT false,
			soft BOOLEAN NOT NULL DEFAULT false,
			universal BOOLEAN NOT NULL DEFAULT false,
			is_active BOOLEAN NOT NULL DEFAULT true
		);

		CREATE TABLE IF NOT EXISTS product_pricing (
			part_number TEXT NOT NULL REFERENCES products(part_number),
			price_type_code TEXT NOT NULL,
			manufacturer_id TEXT NOT NULL DEFAULT '',
			price NUMERIC NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'USD',
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (part_number, price_type_code, manufacturer_id)
		);

		CREATE TABLE IF NOT EXISTS product_stock (
			part_number TEXT NOT NULL REFERENCES products(part_number),
			warehouse_id TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (part_number, warehouse_id)
		);

		CREATE TABLE IF NOT EXISTS product_measurements (
			part_number TEXT NOT NULL REFERENCES products(part_number),
			manufacturer_id TEXT NOT NULL DEFAULT '',
			length NUMERIC NOT NULL DEFAULT 0,
			width NUMERIC NOT NULL DEFAULT 0,
			height NUMERIC NOT NULL DEFAULT 0,
			weight NUMERIC NOT NULL DEFAULT 0,
			volume NUMERIC NOT NULL DEFAULT 0,
			dimensional_weight NUMERIC NOT NULL DEFAULT 0,
			effective_date TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (part_number, manufacturer_id)
		);

		CREATE TABLE IF NOT EXISTS product_descriptions (
			part_number TEXT NOT NULL REFERENCES products(part_number),
			description_type TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS product_marketing_content (
			part_number TEXT NOT NULL REFERENCES products(part_number),
			content_type TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_product_descriptions_part_number ON product_descriptions(part_number);
		CREATE INDEX IF NOT EXISTS idx_product_marketing_content_part_number ON product_marketing_content(part_number);

		CREATE TABLE IF NOT EXISTS sync_history (
			id TEXT PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			connector_kind TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			records_created INTEGER NOT NULL DEFAULT 0,
			records_updated INTEGER NOT NULL DEFAULT 0,
			records_failed INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS sync_events (
			id TEXT PRIMARY KEY,
			sync_id TEXT NOT NULL REFERENCES sync_history(id),
			event_type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_sync_events_sync_id ON sync_events(sync_id);
		CREATE INDEX IF NOT EXISTS idx_sync_history_entity_kind ON sync_history(entity_kind);
	`)
	return err
}

// ProductRepository persists processed product records and answers the
// natural-key existence checks the importers need to decide create vs.
// update without an N+1 query per record.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository builds a product repository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// ExistingPartNumbers returns the subset of partNumbers already present,
// mirroring get_existing_entities' bulk natural-key fetch.
func (r *ProductRepository) ExistingPartNumbers(ctx context.Context, partNumbers []string) (map[string]bool, error) {
	out := make(map[string]bool, len(partNumbers))
	if len(partNumbers) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT part_number FROM products WHERE part_number IN (?)`, partNumbers)
	if err != nil {
		return nil, errors.DatabaseError("existing_part_numbers", err)
	}
	query = r.db.Rebind(query)

	var found []string
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, errors.DatabaseError("existing_part_numbers", err)
	}
	for _, pn := range found {
		out[pn] = true
	}
	return out, nil
}

// Upsert creates or updates a product by part number in one statement.
func (r *ProductRepository) Upsert(ctx context.Context, p Product) (created bool, err error) {
	existing, err := r.ExistingPartNumbers(ctx, []string{p.PartNumber})
	if err != nil {
		return false, err
	}
	created = !existing[p.PartNumber]

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO products (part_number, part_number_stripped, application, vintage, late_model, soft, universal, is_active)
		VALUES (:part_number, :part_number_stripped, :application, :vintage, :late_model, :soft, :universal, :is_active)
		ON CONFLICT (part_number) DO UPDATE SET
			application = EXCLUDED.application,
			vintage = EXCLUDED.vintage,
			late_model = EXCLUDED.late_model,
			soft = EXCLUDED.soft,
			universal = EXCLUDED.universal,
			is_active = EXCLUDED.is_active
	`, p)
	if err != nil {
		return false, errors.DatabaseError("upsert_product", err)
	}
	return created, nil
}

// PricingRepository persists processed pricing records.
type PricingRepository struct {
	db *sqlx.DB
}

// NewPricingRepository builds a pricing repository.
func NewPricingRepository(db *sqlx.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

// Exists reports whether pricing already exists for this key, used to
// report created vs. updated the way the natural-key importers do.
func (r *PricingRepository) Exists(ctx context.Context, p Pricing) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM product_pricing
		WHERE part_number = $1 AND price_type_code = $2 AND manufacturer_id = $3
	`, p.PartNumber, p.PriceTypeCode, p.ManufacturerID)
	if err != nil {
		return false, errors.DatabaseError("pricing_exists", err)
	}
	return count > 0, nil
}

// Upsert creates or updates a pricing row.
func (r *PricingRepository) Upsert(ctx context.Context, p Pricing) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO product_pricing (part_number, price_type_code, manufacturer_id, price, currency, last_updated)
		VALUES (:part_number, :price_type_code, :manufacturer_id, :price, :currency, :last_updated)
		ON CONFLICT (part_number, price_type_code, manufacturer_id) DO UPDATE SET
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			last_updated = EXCLUDED.last_updated
	`, p)
	if err != nil {
		return errors.DatabaseError("upsert_pricing", err)
	}
	return nil
}

// StockRepository persists processed stock records.
type StockRepository struct {
	db *sqlx.DB
}

// NewStockRepository builds a stock repository.
func NewStockRepository(db *sqlx.DB) *StockRepository {
	return &StockRepository{db: db}
}

// Exists reports whether a stock row already exists for this key.
func (r *StockRepository) Exists(ctx context.Context, s Stock) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM product_stock WHERE part_number = $1 AND warehouse_id = $2
	`, s.PartNumber, s.WarehouseID)
	if err != nil {
		return false, errors.DatabaseError("stock_exists", err)
	}
	return count > 0, nil
}

// Upsert creates or updates a stock row.
func (r *StockRepository) Upsert(ctx context.Context, s Stock) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO product_stock (part_number, warehouse_id, quantity, last_updated)
		VALUES (:part_number, :warehouse_id, :quantity, :last_updated)
		ON CONFLICT (part_number, warehouse_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			last_updated = EXCLUDED.last_updated
	`, s)
	if err != nil {
		return errors.DatabaseError("upsert_stock", err)
	}
	return nil
}

// MeasurementRepository persists processed measurement records.
type MeasurementRepository struct {
	db *sqlx.DB
}

// NewMeasurementRepository builds a measurement repository.
func NewMeasurementRepository(db *sqlx.DB) *MeasurementRepository {
	return &MeasurementRepository{db: db}
}

// Exists reports whether a measurement row already exists for this key.
func (r *MeasurementRepository) Exists(ctx context.Context, m Measurement) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM product_measurements WHERE part_number = $1 AND manufacturer_id = $2
	`, m.PartNumber, m.ManufacturerID)
	if err != nil {
		return false, errors.DatabaseError("measurement_exists", err)
	}
	return count > 0, nil
}

// Upsert creates or updates a measurement row.
func (r *MeasurementRepository) Upsert(ctx context.Context, m Measurement) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO product_measurements (part_number, manufacturer_id, length, width, height, weight, volume, dimensional_weight, effective_date)
		VALUES (:part_number, :manufacturer_id, :length, :width, :height, :weight, :volume, :dimensional_weight, :effective_date)
		ON CONFLICT (part_number, manufacturer_id) DO UPDATE SET
			length = EXCLUDED.length,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			weight = EXCLUDED.weight,
			volume = EXCLUDED.volume,
			dimensional_weight = EXCLUDED.dimensional_weight,
			effective_date = EXCLUDED.effective_date
	`, m)
	if err != nil {
		return errors.DatabaseError("upsert_measurement", err)
	}
	return nil
}

// HistoryRepository persists sync runs and their events, the Go
// equivalent of the source system's SyncHistoryRepository.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository builds a sync-history repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Create starts a new sync run record.
func (r *HistoryRepository) Create(ctx context.Context, h *SyncHistory) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO sync_history (id, entity_kind, connector_kind, status, started_at)
		VALUES (:id, :entity_kind, :connector_kind, :status, :started_at)
	`, h)
	if err != nil {
		return errors.DatabaseError("create_sync_history", err)
	}
	return nil
}

// UpdateStatus records the final (or intermediate) status and counters
// for a sync run.
func (r *HistoryRepository) UpdateStatus(ctx context.Context, id, status string, created, updated, failed int, errMsg string) error {
	var completedAt sql.NullTime
	if status == "completed" || status == "failed" {
		completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_history SET
			status = $2, records_created = $3, records_updated = $4,
			records_failed = $5, error_message = $6, completed_at = $7
		WHERE id = $1
	`, id, status, created, updated, failed, errMsg, completedAt)
	if err != nil {
		return errors.DatabaseError("update_sync_history", err)
	}
	return nil
}

// AddEvent appends a lifecycle event to a sync run's audit trail.
func (r *HistoryRepository) AddEvent(ctx context.Context, e *SyncEvent) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO sync_events (id, sync_id, event_type, message, created_at)
		VALUES (:id, :sync_id, :event_type, :message, :created_at)
	`, e)
	if err != nil {
		return errors.DatabaseError("add_sync_event", err)
	}
	return nil
}

// Get retrieves a sync run by ID.
func (r *HistoryRepository) Get(ctx context.Context, id string) (*SyncHistory, error) {
	var h SyncHistory
	err := r.db.GetContext(ctx, &h, `SELECT * FROM sync_history WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("sync_history", id)
	}
	if err != nil {
		return nil, errors.DatabaseError("get_sync_history", err)
	}
	return &h, nil
}
