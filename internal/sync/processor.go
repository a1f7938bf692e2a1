package sync

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/partshub/runtime/infrastructure/logging"
)

var numericCleanupPattern = regexp.MustCompile(`[^\d.\-]`)

// ProcessorConfig controls how a Processor maps and type-converts raw
// source fields onto an application record.
type ProcessorConfig struct {
	FieldMapping    map[string]string // source column -> destination field
	BooleanTrue     []string
	BooleanFalse    []string
	DefaultValues   map[string]any
	SkipFields      []string
	RequiredFields  []string
	DateFormat      string
	TimeFormat      string
	TimestampFormat string
	UniqueKeyField  string
}

// DefaultProcessorConfig returns sensible defaults matching the source
// system's own boolean-literal conventions.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BooleanTrue:     []string{"1", "Y", "YES", "TRUE", "T"},
		BooleanFalse:    []string{"0", "N", "NO", "FALSE", "F"},
		DateFormat:      "2006-01-02",
		TimeFormat:      "15:04:05",
		TimestampFormat: "2006-01-02 15:04:05",
	}
}

// Processor transforms raw connector records into processed records ready
// for validation, and validates processed records against entity-specific
// rules. Every concrete processor embeds BaseProcessor and supplies its
// own record-level customization.
type Processor interface {
	Process(records []Record) ([]Record, []ImportError)
	Validate(records []Record) ([]Record, []ImportError)
}

// recordCustomizer lets a concrete processor apply entity-specific
// transformations after the generic field-by-field conversion runs.
type recordCustomizer func(processed Record, original Record) (Record, error)

// BaseProcessor implements the field-kind-by-naming-convention inference
// shared by every concrete processor: a suffix or prefix on the source
// column name decides whether the value is converted to bool, date, time,
// timestamp, or numeric before the field is renamed onto its destination
// key.
type BaseProcessor struct {
	cfg       ProcessorConfig
	customize recordCustomizer
	log       *logging.Logger
	seen      map[string]struct{}
}

// NewBaseProcessor builds a processor. customize may be nil if the entity
// needs no record-level post-processing beyond generic field conversion.
func NewBaseProcessor(cfg ProcessorConfig, log *logging.Logger, customize recordCustomizer) *BaseProcessor {
	return &BaseProcessor{cfg: cfg, customize: customize, log: log, seen: make(map[string]struct{})}
}

// Process converts every raw record into a processed record, skipping
// (and reporting) any record that errors or duplicates a prior unique key.
func (p *BaseProcessor) Process(records []Record) ([]Record, []ImportError) {
	p.seen = make(map[string]struct{})
	var out []Record
	var errs []ImportError

	for i, rec := range records {
		processed, err := p.processRecord(rec)
		if err != nil {
			errs = append(errs, ImportError{Index: i, Error: err.Error()})
			continue
		}

		if p.cfg.UniqueKeyField != "" {
			if key, ok := processed[p.cfg.UniqueKeyField]; ok {
				keyStr := fmt.Sprintf("%v", key)
				if _, dup := p.seen[keyStr]; dup {
					errs = append(errs, ImportError{Index: i, Key: keyStr, Error: "duplicate key"})
					continue
				}
				p.seen[keyStr] = struct{}{}
			}
		}

		out = append(out, processed)
	}

	if p.log != nil {
		if len(errs) > 0 {
			p.log.WithField("processed", len(out)).WithField("errors", len(errs)).Warn("processed records with errors")
		} else {
			p.log.WithField("processed", len(out)).Info("processed records successfully")
		}
	}
	return out, errs
}

// Validate checks required fields are present on every processed record.
// This is a structural check (the Pydantic model validation the original
// delegated to); entity-specific value rules live in each concrete
// processor's customize function, applied during Process.
func (p *BaseProcessor) Validate(records []Record) ([]Record, []ImportError) {
	var out []Record
	var errs []ImportError

	for i, rec := range records {
		missing := false
		for _, field := range p.cfg.RequiredFields {
			if v, ok := rec[field]; !ok || v == nil {
				errs = append(errs, ImportError{Index: i, Error: "missing required field: " + field})
				missing = true
				break
			}
		}
		if !missing {
			out = append(out, rec)
		}
	}

	if len(errs) >= len(records) && len(records) > 0 {
		return nil, errs
	}
	return out, errs
}

func (p *BaseProcessor) processRecord(rec Record) (Record, error) {
	out := make(Record, len(rec)+len(p.cfg.DefaultValues))
	for k, v := range p.cfg.DefaultValues {
		out[k] = v
	}

	skip := make(map[string]struct{}, len(p.cfg.SkipFields))
	for _, f := range p.cfg.SkipFields {
		skip[f] = struct{}{}
	}

	for sourceField, value := range rec {
		if _, ok := skip[sourceField]; ok {
			continue
		}
		destField := sourceField
		if mapped, ok := p.cfg.FieldMapping[sourceField]; ok {
			destField = mapped
		}
		out[destField] = p.convertFieldValue(sourceField, value)
	}

	if p.customize != nil {
		converted, err := p.customize(out, rec)
		if err != nil {
			return nil, err
		}
		out = converted
	}

	for _, field := range p.cfg.RequiredFields {
		if v, ok := out[field]; !ok || v == nil {
			return nil, fmt.Errorf("missing required field: %s", field)
		}
	}

	return out, nil
}

// convertFieldValue applies the naming-convention-driven type inference:
// IS_/HAS_ prefixes and _FLAG/_YN/_INDICATOR suffixes mean boolean,
// _DATE/_DT means date, _TIME/_TM means time, _TIMESTAMP/_TS means
// timestamp, and _QTY/_AMOUNT/_AMT/_NUM/_PRICE mean numeric.
func (p *BaseProcessor) convertFieldValue(field string, value any) any {
	if value == nil {
		return nil
	}

	upper := strings.ToUpper(field)
	switch {
	case strings.HasPrefix(upper, "IS_"), strings.HasPrefix(upper, "HAS_"),
		strings.HasSuffix(upper, "_FLAG"), strings.HasSuffix(upper, "_YN"), strings.HasSuffix(upper, "_INDICATOR"):
		return p.convertBoolean(value)
	case strings.HasSuffix(upper, "_DATE"), strings.HasSuffix(upper, "_DT"):
		return p.convertDate(value)
	case strings.HasSuffix(upper, "_TIME"), strings.HasSuffix(upper, "_TM"):
		return p.convertTime(value)
	case strings.HasSuffix(upper, "_TIMESTAMP"), strings.HasSuffix(upper, "_TS"):
		return p.convertTimestamp(value)
	case strings.HasSuffix(upper, "_QTY"), strings.HasSuffix(upper, "_AMOUNT"), strings.HasSuffix(upper, "_AMT"),
		strings.HasSuffix(upper, "_NUM"), strings.HasSuffix(upper, "_PRICE"):
		return p.convertNumeric(value)
	}

	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

func (p *BaseProcessor) convertBoolean(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		upper := strings.ToUpper(strings.TrimSpace(v))
		for _, t := range p.cfg.BooleanTrue {
			if upper == t {
				return true
			}
		}
		return false
	default:
		return false
	}
}

var dateFallbackFormats = []string{"20060102", "01/02/2006", "02/01/2006"}
var timeFallbackFormats = []string{"150405", "03:04:05 PM", "15:04"}
var timestampFallbackFormats = []string{"20060102150405", "2006-01-02T15:04:05", "01/02/2006 03:04:05 PM"}

func (p *BaseProcessor) convertDate(value any) *time.Time {
	s, ok := value.(string)
	if !ok {
		if t, ok := value.(time.Time); ok {
			return &t
		}
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" || s == "0000-00-00" || s == "00/00/0000" {
		return nil
	}

	if t, err := time.Parse(p.cfg.DateFormat, s); err == nil {
		return &t
	}
	for _, fmtStr := range dateFallbackFormats {
		if t, err := time.Parse(fmtStr, s); err == nil {
			return &t
		}
	}
	if p.log != nil {
		p.log.WithField("value", s).Warn("could not parse date value")
	}
	return nil
}

func (p *BaseProcessor) convertTime(value any) *time.Time {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if t, err := time.Parse(p.cfg.TimeFormat, s); err == nil {
		return &t
	}
	for _, fmtStr := range timeFallbackFormats {
		if t, err := time.Parse(fmtStr, s); err == nil {
			return &t
		}
	}
	if p.log != nil {
		p.log.WithField("value", s).Warn("could not parse time value")
	}
	return nil
}

func (p *BaseProcessor) convertTimestamp(value any) *time.Time {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if t, err := time.Parse(p.cfg.TimestampFormat, s); err == nil {
		return &t
	}
	for _, fmtStr := range timestampFallbackFormats {
		if t, err := time.Parse(fmtStr, s); err == nil {
			return &t
		}
	}
	if p.log != nil {
		p.log.WithField("value", s).Warn("could not parse timestamp value")
	}
	return nil
}

func (p *BaseProcessor) convertNumeric(value any) any {
	switch v := value.(type) {
	case int, float64:
		return v
	case string:
		cleaned := numericCleanupPattern.ReplaceAllString(v, "")
		if cleaned == "" || cleaned == "." || cleaned == "-" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			if p.log != nil {
				p.log.WithField("value", v).Warn("could not convert to numeric")
			}
			return nil
		}
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	default:
		return nil
	}
}

// NewProductProcessor builds the processor for product records: it
// normalizes the part number into part_number_stripped the way the
// source system's ProductAS400Processor does.
func NewProductProcessor(cfg ProcessorConfig, log *logging.Logger) *BaseProcessor {
	return NewBaseProcessor(cfg, log, func(processed, _ Record) (Record, error) {
		if pn, ok := processed["part_number"].(string); ok && pn != "" {
			if _, has := processed["part_number_stripped"]; !has {
				processed["part_number_stripped"] = normalizePartNumber(pn)
			}
		}
		return processed, nil
	})
}

func normalizePartNumber(partNumber string) string {
	var b strings.Builder
	for _, r := range partNumber {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

// NewPricingProcessor builds the processor for pricing records: it
// coerces price to float64 and defaults currency to USD, as the source
// system's PricingAS400Processor does.
func NewPricingProcessor(cfg ProcessorConfig, log *logging.Logger) *BaseProcessor {
	return NewBaseProcessor(cfg, log, func(processed, _ Record) (Record, error) {
		if price, ok := processed["price"]; ok && price != nil {
			switch v := price.(type) {
			case int64:
				processed["price"] = float64(v)
			case string:
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					processed["price"] = 0.0
				} else {
					processed["price"] = f
				}
			}
		}
		if currency, ok := processed["currency"].(string); !ok || currency == "" {
			processed["currency"] = "USD"
		}
		return processed, nil
	})
}

// NewInventoryProcessor builds the processor for stock records: it
// coerces quantity to a non-negative integer and stamps last_updated, as
// the source system's InventoryAS400Processor does.
func NewInventoryProcessor(cfg ProcessorConfig, log *logging.Logger, now func() time.Time) *BaseProcessor {
	return NewBaseProcessor(cfg, log, func(processed, _ Record) (Record, error) {
		if qty, ok := processed["quantity"]; ok {
			var n int64
			switch v := qty.(type) {
			case int64:
				n = v
			case float64:
				n = int64(v)
			case string:
				f, err := strconv.ParseFloat(v, 64)
				if err == nil {
					n = int64(f)
				}
			}
			if n < 0 {
				n = 0
			}
			processed["quantity"] = n
		}
		if _, ok := processed["last_updated"]; !ok {
			processed["last_updated"] = now()
		}
		return processed, nil
	})
}
