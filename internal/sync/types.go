// Package sync implements the external-data sync engine: connectors that
// extract rows from AS400/DB2, FileMaker, and flat files, processors that
// type-convert and validate them, importers that upsert them into Postgres,
// and the chunked pipeline plus cron scheduler that ties the three together.
package sync

import "time"

// EntityKind identifies the kind of catalog record a sync run produces.
type EntityKind string

const (
	EntityProduct     EntityKind = "product"
	EntityPricing     EntityKind = "pricing"
	EntityStock       EntityKind = "stock"
	EntityMeasurement EntityKind = "measurement"
)

// Record is one raw row extracted from a source system, keyed by its
// source column names exactly as returned by the connector.
type Record map[string]any

// Product is the processed, validated representation of a parts-catalog
// product ready for import.
type Product struct {
	PartNumber         string `db:"part_number"`
	PartNumberStripped string `db:"part_number_stripped"`
	Application        string `db:"application"`
	Vintage            bool   `db:"vintage"`
	LateModel          bool   `db:"late_model"`
	Soft               bool   `db:"soft"`
	Universal          bool   `db:"universal"`
	IsActive           bool   `db:"is_active"`
}

// Pricing is the processed representation of a product's price at a
// given price type, optionally scoped to a manufacturer.
type Pricing struct {
	PartNumber     string    `db:"part_number"`
	PriceTypeCode  string    `db:"price_type_code"`
	ManufacturerID string    `db:"manufacturer_id"`
	Price          float64   `db:"price"`
	Currency       string    `db:"currency"`
	LastUpdated    time.Time `db:"last_updated"`
}

// Stock is the processed representation of a product's on-hand quantity
// at a warehouse.
type Stock struct {
	PartNumber  string    `db:"part_number"`
	WarehouseID string    `db:"warehouse_id"`
	Quantity    int       `db:"quantity"`
	LastUpdated time.Time `db:"last_updated"`
}

// Measurement is the processed representation of a product's physical
// dimensions, optionally scoped to a manufacturer's packaging.
type Measurement struct {
	PartNumber        string    `db:"part_number"`
	ManufacturerID    string    `db:"manufacturer_id"`
	Length            float64   `db:"length"`
	Width             float64   `db:"width"`
	Height            float64   `db:"height"`
	Weight            float64   `db:"weight"`
	Volume            float64   `db:"volume"`
	DimensionalWeight float64   `db:"dimensional_weight"`
	EffectiveDate     time.Time `db:"effective_date"`
}

// ProductDescription is one dependent description row for a product
// (e.g. "short", "long", "seo"). The payload is the source of truth: each
// product import replaces every description row for that part number.
type ProductDescription struct {
	PartNumber      string `db:"part_number"`
	DescriptionType string `db:"description_type"`
	Content         string `db:"content"`
}

// MarketingContent is one dependent marketing-content row for a product
// (e.g. a feature bullet or a promotional blurb). Replaced wholesale per
// product import, same as ProductDescription.
type MarketingContent struct {
	PartNumber  string `db:"part_number"`
	ContentType string `db:"content_type"`
	Content     string `db:"content"`
}

// ImportStats tallies the outcome of importing one batch of records,
// mirroring the created/updated/errors counters the connector-specific
// importers on the Python side returned per entity type.
type ImportStats struct {
	Created      int           `json:"created"`
	Updated      int           `json:"updated"`
	Errors       int           `json:"errors"`
	Total        int           `json:"total"`
	ErrorDetails []ImportError `json:"error_details,omitempty"`
}

// ImportError records one record that failed during import, with enough
// context to locate it in the source batch.
type ImportError struct {
	Index int    `json:"index"`
	Key   string `json:"key"`
	Error string `json:"error"`
}

// Success reports whether the batch imported without errors.
func (s ImportStats) Success() bool {
	return s.Errors == 0
}

// SyncHistory is one sync run of a single entity kind; Pipeline.Run writes
// one row per kind it runs (mirrors an AS400/FileMaker/File run triggered by a
// schedule or by `syncctl import-all`).
type SyncHistory struct {
	ID             string     `db:"id"`
	EntityKind     EntityKind `db:"entity_kind"`
	ConnectorKind  string     `db:"connector_kind"`
	Status         string     `db:"status"`
	RecordsCreated int        `db:"records_created"`
	RecordsUpdated int        `db:"records_updated"`
	RecordsFailed  int        `db:"records_failed"`
	ErrorMessage   string     `db:"error_message"`
	StartedAt      time.Time  `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// SyncEvent is a single timestamped event within a sync run's lifecycle
// (start, chunk progress, completion, failure) used for operator-facing
// audit trails.
type SyncEvent struct {
	ID        string    `db:"id"`
	SyncID    string    `db:"sync_id"`
	EventType string    `db:"event_type"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}
