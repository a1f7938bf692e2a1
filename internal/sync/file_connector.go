package sync

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"

	"github.com/partshub/runtime/infrastructure/errors"
)

// FileFormat is the on-disk encoding a FileConnector reads.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatJSON FileFormat = "json"
)

// FileConnectorConfig configures a flat-file connector.
type FileConnectorConfig struct {
	Path      string
	Format    FileFormat
	Delimiter rune
	Encoding  string
}

// FileConnector extracts records from a CSV or JSON flat file. It
// implements the same Connector interface the ODBC-backed connectors do,
// so the pipeline can run a flat-file import through the identical
// extract/process/validate/import path.
type FileConnector struct {
	cfg FileConnectorConfig
}

// NewFileConnector builds a connector over a local CSV or JSON file.
func NewFileConnector(cfg FileConnectorConfig) *FileConnector {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	return &FileConnector{cfg: cfg}
}

// Connect is a no-op for file connectors; the file is opened per extract.
func (c *FileConnector) Connect(ctx context.Context) error { return nil }

// Close is a no-op for file connectors.
func (c *FileConnector) Close(ctx context.Context) error { return nil }

// Extract reads every row of the configured file, ignoring query (a file
// connector has exactly one source) and truncating to limit if positive.
func (c *FileConnector) Extract(ctx context.Context, query string, limit int) ([]Record, error) {
	switch c.cfg.Format {
	case FormatJSON:
		return c.extractJSON(limit)
	default:
		return c.extractCSV(limit)
	}
}

func (c *FileConnector) extractCSV(limit int) ([]Record, error) {
	f, err := os.Open(c.cfg.Path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeExternalAPI, "failed to open csv file", 502, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = c.cfg.Delimiter

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeExternalAPI, "failed to read csv header", 502, err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

func (c *FileConnector) extractJSON(limit int) ([]Record, error) {
	data, err := os.ReadFile(c.cfg.Path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeExternalAPI, "failed to open json file", 502, err)
	}

	var raw []Record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeExternalAPI, "failed to decode json file", 502, err)
	}

	if limit > 0 && limit < len(raw) {
		raw = raw[:limit]
	}
	return raw, nil
}
