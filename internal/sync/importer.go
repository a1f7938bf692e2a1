package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/partshub/runtime/infrastructure/errors"
	"github.com/partshub/runtime/infrastructure/logging"
)

// Importer upserts one batch of processed records of a single entity
// kind into Postgres inside one transaction, returning per-record stats
// the way the natural-key importers did.
type Importer interface {
	Import(ctx context.Context, records []Record) (ImportStats, error)
}

// ProductImporter imports processed product records.
type ProductImporter struct {
	db  *sqlx.DB
	log *logging.Logger
}

// NewProductImporter builds a product importer.
func NewProductImporter(db *sqlx.DB, log *logging.Logger) *ProductImporter {
	return &ProductImporter{db: db, log: log}
}

// Import bulk-fetches the existing part numbers for this batch once, then
// creates or updates every record inside a single transaction, mirroring
// ProductAS400Importer.import_data.
func (im *ProductImporter) Import(ctx context.Context, records []Record) (ImportStats, error) {
	if len(records) == 0 {
		return ImportStats{}, nil
	}

	partNumbers := make([]string, 0, len(records))
	for _, r := range records {
		if pn, ok := r["part_number"].(string); ok {
			partNumbers = append(partNumbers, pn)
		}
	}

	repo := NewProductRepository(im.db)
	existing, err := repo.ExistingPartNumbers(ctx, partNumbers)
	if err != nil {
		return ImportStats{}, err
	}

	tx, err := im.db.BeginTxx(ctx, nil)
	if err != nil {
		return ImportStats{}, errors.DatabaseError("begin_product_import", err)
	}

	stats := ImportStats{Total: len(records)}
	for i, r := range records {
		p := toProduct(r)
		if p.PartNumber == "" {
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Error: "missing part_number"})
			continue
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO products (part_number, part_number_stripped, application, vintage, late_model, soft, universal, is_active)
			VALUES (:part_number, :part_number_stripped, :application, :vintage, :late_model, :soft, :universal, :is_active)
			ON CONFLICT (part_number) DO UPDATE SET
				application = EXCLUDED.application,
				vintage = EXCLUDED.vintage,
				late_model = EXCLUDED.late_model,
				soft = EXCLUDED.soft,
				universal = EXCLUDED.universal,
				is_active = EXCLUDED.is_active
		`, p); err != nil {
			im.log.WithField("part_number", p.PartNumber).Error("error importing product: " + err.Error())
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: p.PartNumber, Error: err.Error()})
			continue
		}

		if err := im.syncDescriptions(ctx, tx, p.PartNumber, r["descriptions"]); err != nil {
			im.log.WithField("part_number", p.PartNumber).Error("error syncing descriptions: " + err.Error())
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: p.PartNumber, Error: err.Error()})
			continue
		}
		if err := im.syncMarketingContent(ctx, tx, p.PartNumber, r["marketing_content"]); err != nil {
			im.log.WithField("part_number", p.PartNumber).Error("error syncing marketing content: " + err.Error())
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: p.PartNumber, Error: err.Error()})
			continue
		}

		if existing[p.PartNumber] {
			stats.Updated++
		} else {
			stats.Created++
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return ImportStats{}, errors.DatabaseError("commit_product_import", err)
	}

	im.log.WithField("created", stats.Created).WithField("updated", stats.Updated).WithField("errors", stats.Errors).
		Info("product import complete")
	return stats, nil
}

// syncDescriptions replaces every description row for partNumber with the
// ones carried in the raw payload value (expected to be a []interface{} of
// maps with description_type/content keys). The payload is the source of
// truth, so existing child rows are deleted before the reinsert rather than
// diffed against it.
func (im *ProductImporter) syncDescriptions(ctx context.Context, tx *sqlx.Tx, partNumber string, raw any) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_descriptions WHERE part_number = $1`, partNumber); err != nil {
		return fmt.Errorf("delete product_descriptions for %s: %w", partNumber, err)
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	for _, item := range items {
		child, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		d := ProductDescription{PartNumber: partNumber}
		if v, ok := child["description_type"].(string); ok {
			d.DescriptionType = v
		}
		if v, ok := child["content"].(string); ok {
			d.Content = v
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO product_descriptions (part_number, description_type, content)
			VALUES (:part_number, :description_type, :content)
		`, d); err != nil {
			return fmt.Errorf("insert product_descriptions for %s: %w", partNumber, err)
		}
	}
	return nil
}

// syncMarketingContent replaces every marketing-content row for partNumber,
// mirroring syncDescriptions' delete-then-reinsert contract.
func (im *ProductImporter) syncMarketingContent(ctx context.Context, tx *sqlx.Tx, partNumber string, raw any) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_marketing_content WHERE part_number = $1`, partNumber); err != nil {
		return fmt.Errorf("delete product_marketing_content for %s: %w", partNumber, err)
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	for _, item := range items {
		child, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		m := MarketingContent{PartNumber: partNumber}
		if v, ok := child["content_type"].(string); ok {
			m.ContentType = v
		}
		if v, ok := child["content"].(string); ok {
			m.Content = v
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO product_marketing_content (part_number, content_type, content)
			VALUES (:part_number, :content_type, :content)
		`, m); err != nil {
			return fmt.Errorf("insert product_marketing_content for %s: %w", partNumber, err)
		}
	}
	return nil
}

func toProduct(r Record) Product {
	p := Product{}
	if v, ok := r["part_number"].(string); ok {
		p.PartNumber = v
	}
	if v, ok := r["part_number_stripped"].(string); ok {
		p.PartNumberStripped = v
	}
	if v, ok := r["application"].(string); ok {
		p.Application = v
	}
	if v, ok := r["vintage"].(bool); ok {
		p.Vintage = v
	}
	if v, ok := r["late_model"].(bool); ok {
		p.LateModel = v
	}
	if v, ok := r["soft"].(bool); ok {
		p.Soft = v
	}
	if v, ok := r["universal"].(bool); ok {
		p.Universal = v
	}
	if v, ok := r["is_active"].(bool); ok {
		p.IsActive = v
	} else {
		p.IsActive = true
	}
	return p
}

// MeasurementImporter imports processed measurement records, rejecting
// any row whose parent product does not exist, mirroring
// ProductMeasurementImporter.
type MeasurementImporter struct {
	db  *sqlx.DB
	log *logging.Logger
}

// NewMeasurementImporter builds a measurement importer.
func NewMeasurementImporter(db *sqlx.DB, log *logging.Logger) *MeasurementImporter {
	return &MeasurementImporter{db: db, log: log}
}

// Import creates or updates measurement rows after checking each
// record's parent product exists.
func (im *MeasurementImporter) Import(ctx context.Context, records []Record) (ImportStats, error) {
	if len(records) == 0 {
		return ImportStats{}, nil
	}

	productRepo := NewProductRepository(im.db)
	partNumbers := make([]string, 0, len(records))
	for _, r := range records {
		if pn, ok := r["part_number"].(string); ok {
			partNumbers = append(partNumbers, pn)
		}
	}
	existingProducts, err := productRepo.ExistingPartNumbers(ctx, partNumbers)
	if err != nil {
		return ImportStats{}, err
	}

	measurementRepo := NewMeasurementRepository(im.db)

	stats := ImportStats{Total: len(records)}
	for i, r := range records {
		m := toMeasurement(r)
		if !existingProducts[m.PartNumber] {
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: m.PartNumber, Error: "product does not exist"})
			continue
		}

		existed, err := measurementRepo.Exists(ctx, m)
		if err != nil {
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: m.PartNumber, Error: err.Error()})
			continue
		}

		if m.EffectiveDate.IsZero() {
			m.EffectiveDate = time.Now().UTC()
		}
		if err := measurementRepo.Upsert(ctx, m); err != nil {
			im.log.WithField("part_number", m.PartNumber).Error("error importing measurement: " + err.Error())
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: m.PartNumber, Error: err.Error()})
			continue
		}

		if existed {
			stats.Updated++
		} else {
			stats.Created++
		}
	}

	im.log.WithField("created", stats.Created).WithField("updated", stats.Updated).WithField("errors", stats.Errors).
		Info("measurement import complete")
	return stats, nil
}

func toMeasurement(r Record) Measurement {
	m := Measurement{}
	if v, ok := r["part_number"].(string); ok {
		m.PartNumber = v
	}
	if v, ok := r["manufacturer_id"].(string); ok {
		m.ManufacturerID = v
	}
	m.Length = toFloat(r["length"])
	m.Width = toFloat(r["width"])
	m.Height = toFloat(r["height"])
	m.Weight = toFloat(r["weight"])
	m.Volume = toFloat(r["volume"])
	m.DimensionalWeight = toFloat(r["dimensional_weight"])
	if t, ok := r["effective_date"].(*time.Time); ok && t != nil {
		m.EffectiveDate = *t
	}
	return m
}

// StockImporter imports processed stock records, rejecting any row
// whose parent product does not exist, mirroring ProductStockImporter.
type StockImporter struct {
	db  *sqlx.DB
	log *logging.Logger
}

// NewStockImporter builds a stock importer.
func NewStockImporter(db *sqlx.DB, log *logging.Logger) *StockImporter {
	return &StockImporter{db: db, log: log}
}

// Import creates or updates stock rows after checking each record's
// parent product exists.
func (im *StockImporter) Import(ctx context.Context, records []Record) (ImportStats, error) {
	if len(records) == 0 {
		return ImportStats{}, nil
	}

	productRepo := NewProductRepository(im.db)
	partNumbers := make([]string, 0, len(records))
	for _, r := range records {
		if pn, ok := r["part_number"].(string); ok {
			partNumbers = append(partNumbers, pn)
		}
	}
	existingProducts, err := productRepo.ExistingPartNumbers(ctx, partNumbers)
	if err != nil {
		return ImportStats{}, err
	}

	stockRepo := NewStockRepository(im.db)

	stats := ImportStats{Total: len(records)}
	for i, r := range records {
		s := toStock(r)
		if !existingProducts[s.PartNumber] {
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: s.PartNumber, Error: "product does not exist"})
			continue
		}

		existed, err := stockRepo.Exists(ctx, s)
		if err != nil {
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: s.PartNumber, Error: err.Error()})
			continue
		}

		s.LastUpdated = time.Now().UTC()
		if err := stockRepo.Upsert(ctx, s); err != nil {
			im.log.WithField("part_number", s.PartNumber).Error("error importing stock: " + err.Error())
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: s.PartNumber, Error: err.Error()})
			continue
		}

		if existed {
			stats.Updated++
		} else {
			stats.Created++
		}
	}

	im.log.WithField("created", stats.Created).WithField("updated", stats.Updated).WithField("errors", stats.Errors).
		Info("stock import complete")
	return stats, nil
}

func toStock(r Record) Stock {
	s := Stock{}
	if v, ok := r["part_number"].(string); ok {
		s.PartNumber = v
	}
	if v, ok := r["warehouse_id"].(string); ok {
		s.WarehouseID = v
	}
	switch v := r["quantity"].(type) {
	case int:
		s.Quantity = v
	case int64:
		s.Quantity = int(v)
	case float64:
		s.Quantity = int(v)
	}
	return s
}

// PricingImporter imports processed pricing records, falling back to
// USD when an unrecognized currency is encountered, mirroring
// ProductPricingImporter's default-currency behavior.
type PricingImporter struct {
	db              *sqlx.DB
	log             *logging.Logger
	knownCurrencies map[string]bool
	defaultCurrency string
}

// NewPricingImporter builds a pricing importer. knownCurrencies may be
// nil, in which case every currency code is accepted as-is.
func NewPricingImporter(db *sqlx.DB, log *logging.Logger, knownCurrencies map[string]bool) *PricingImporter {
	return &PricingImporter{db: db, log: log, knownCurrencies: knownCurrencies, defaultCurrency: "USD"}
}

// Import creates or updates pricing rows after checking each record's
// parent product exists.
func (im *PricingImporter) Import(ctx context.Context, records []Record) (ImportStats, error) {
	if len(records) == 0 {
		return ImportStats{}, nil
	}

	productRepo := NewProductRepository(im.db)
	partNumbers := make([]string, 0, len(records))
	for _, r := range records {
		if pn, ok := r["part_number"].(string); ok {
			partNumbers = append(partNumbers, pn)
		}
	}
	existingProducts, err := productRepo.ExistingPartNumbers(ctx, partNumbers)
	if err != nil {
		return ImportStats{}, err
	}

	pricingRepo := NewPricingRepository(im.db)

	stats := ImportStats{Total: len(records)}
	for i, r := range records {
		p := toPricing(r)
		if !existingProducts[p.PartNumber] {
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: p.PartNumber, Error: "product does not exist"})
			continue
		}

		if im.knownCurrencies != nil && !im.knownCurrencies[p.Currency] {
			im.log.WithField("currency", p.Currency).Warn("unknown currency, using default")
			p.Currency = im.defaultCurrency
		}

		existed, err := pricingRepo.Exists(ctx, p)
		if err != nil {
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: p.PartNumber, Error: err.Error()})
			continue
		}

		p.LastUpdated = time.Now().UTC()
		if err := pricingRepo.Upsert(ctx, p); err != nil {
			im.log.WithField("part_number", p.PartNumber).Error("error importing pricing: " + err.Error())
			stats.Errors++
			stats.ErrorDetails = append(stats.ErrorDetails, ImportError{Index: i, Key: p.PartNumber, Error: err.Error()})
			continue
		}

		if existed {
			stats.Updated++
		} else {
			stats.Created++
		}
	}

	im.log.WithField("created", stats.Created).WithField("updated", stats.Updated).WithField("errors", stats.Errors).
		Info("pricing import complete")
	return stats, nil
}

func toPricing(r Record) Pricing {
	p := Pricing{Currency: "USD"}
	if v, ok := r["part_number"].(string); ok {
		p.PartNumber = v
	}
	if v, ok := r["price_type_code"].(string); ok {
		p.PriceTypeCode = v
	}
	if v, ok := r["manufacturer_id"].(string); ok {
		p.ManufacturerID = v
	}
	if v, ok := r["currency"].(string); ok && v != "" {
		p.Currency = v
	}
	p.Price = toFloat(r["price"])
	return p
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

// ImporterFor resolves the importer responsible for an entity kind.
func ImporterFor(kind EntityKind, db *sqlx.DB, log *logging.Logger, knownCurrencies map[string]bool) (Importer, error) {
	switch kind {
	case EntityProduct:
		return NewProductImporter(db, log), nil
	case EntityMeasurement:
		return NewMeasurementImporter(db, log), nil
	case EntityStock:
		return NewStockImporter(db, log), nil
	case EntityPricing:
		return NewPricingImporter(db, log, knownCurrencies), nil
	default:
		return nil, errors.InvalidInput("entity_kind", fmt.Sprintf("unsupported entity kind %q", kind))
	}
}
