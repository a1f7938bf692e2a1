package sync

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/alexbrainman/odbc"

	"github.com/partshub/runtime/infrastructure/errors"
	"github.com/partshub/runtime/infrastructure/logging"
	"github.com/partshub/runtime/infrastructure/security"
	"github.com/partshub/runtime/pkg/metrics"
)

// writeVerbPattern rejects any query attempting a write operation over a
// connection that is meant to be read-only end to end.
var writeVerbPattern = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|RENAME)\b`)

// Connector extracts raw records from one external data source. Every
// connector kind (AS400, FileMaker, flat file) implements the same
// interface so the pipeline never branches on source kind past
// construction.
type Connector interface {
	Connect(ctx context.Context) error
	Extract(ctx context.Context, query string, limit int) ([]Record, error)
	Close(ctx context.Context) error
}

// ODBCConfig is the shared connection configuration for the two
// ODBC-backed connectors (AS400/DB2 and FileMaker): a DSN, read-only
// credentials, and whitelists constraining which tables and schemas a
// bare table-name query may touch.
type ODBCConfig struct {
	DSN            string
	Username       string
	Password       string
	Database       string
	Server         string
	Port           int
	SSL            bool
	AllowedTables  []string
	AllowedSchemas []string
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
}

func (c ODBCConfig) allowsTable(name string) bool {
	if len(c.AllowedTables) == 0 {
		return true
	}
	upper := strings.ToUpper(name)
	for _, allowed := range c.AllowedTables {
		if strings.ToUpper(allowed) == upper {
			return true
		}
	}
	return false
}

// validateQuery mirrors the original connector's table-whitelist and
// write-verb security checks: a bare table name is whitelist-checked and
// turned into a `SELECT *`, a full query is scanned for write verbs and
// rejected outright if any are present.
func validateQuery(cfg ODBCConfig, query string, limit int) (string, string, error) {
	trimmed := strings.TrimSpace(query)

	if !strings.Contains(trimmed, " ") {
		table := trimmed
		if !cfg.allowsTable(table) {
			return "", "", errors.SecurityViolation(fmt.Sprintf("access to table %q is not allowed", table))
		}
		limitClause := ""
		if limit > 0 {
			limitClause = fmt.Sprintf(" FETCH FIRST %d ROWS ONLY", limit)
		}
		return fmt.Sprintf(`SELECT * FROM %q%s`, table, limitClause), table, nil
	}

	upper := strings.ToUpper(trimmed)
	if writeVerbPattern.MatchString(upper) {
		return "", "", errors.SecurityViolation("write operations are not allowed on a read-only connector")
	}

	if limit > 0 && !strings.Contains(upper, "FETCH FIRST") && !strings.Contains(upper, "LIMIT") {
		trimmed = strings.TrimSuffix(trimmed, ";")
		trimmed = fmt.Sprintf("%s FETCH FIRST %d ROWS ONLY", trimmed, limit)
	}
	return trimmed, "", nil
}

// sanitizeConnectorError strips the connector's own password out of a
// driver error message before it ever reaches a log line.
func sanitizeConnectorError(password string, err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if password != "" {
		msg = strings.ReplaceAll(msg, password, "[REDACTED]")
	}
	return security.SanitizeString(msg)
}

// buildDSN assembles an ODBC connection string the way the original
// connector did: required DSN/UID/PWD/DATABASE, optional SYSTEM/PORT, and
// a trailing ReadOnly flag enforced unconditionally.
func buildDSN(cfg ODBCConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "DSN=%s;UID=%s;PWD=%s;DATABASE=%s;", cfg.DSN, cfg.Username, cfg.Password, cfg.Database)
	if cfg.Server != "" {
		fmt.Fprintf(&b, "SYSTEM=%s;", cfg.Server)
	}
	if cfg.Port != 0 {
		fmt.Fprintf(&b, "PORT=%d;", cfg.Port)
	}
	if cfg.SSL {
		b.WriteString("SSLCONNECTION=TRUE;")
	}
	b.WriteString("ReadOnly=True;")
	return b.String()
}

// odbcConnector is the shared implementation behind AS400Connector and
// FileMakerConnector: both talk ODBC, both enforce the same whitelist and
// write-verb rules, and both audit which tables were touched on close.
type odbcConnector struct {
	cfg  ODBCConfig
	log  *logging.Logger
	kind string

	mu             sync.Mutex
	db             *sql.DB
	accessedTables map[string]struct{}
}

// NewAS400Connector builds a connector for an AS400/DB2 ODBC source.
func NewAS400Connector(cfg ODBCConfig, log *logging.Logger) Connector {
	return &odbcConnector{cfg: cfg, log: log, kind: "as400", accessedTables: make(map[string]struct{})}
}

// NewFileMakerConnector builds a connector for a FileMaker ODBC source.
// It is symmetric with the AS400 connector by construction: same DSN
// assembly, same whitelist and write-verb enforcement, same audit trail.
func NewFileMakerConnector(cfg ODBCConfig, log *logging.Logger) Connector {
	return &odbcConnector{cfg: cfg, log: log, kind: "filemaker", accessedTables: make(map[string]struct{})}
}

func (c *odbcConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	c.log.WithField("database", c.cfg.Database).WithField("connector", c.kind).
		Info("connecting to external data source")

	db, err := sql.Open("odbc", buildDSN(c.cfg))
	if err != nil {
		return errors.Wrap(errors.ErrCodeExternalAPI, "failed to open connector", 502, err)
	}

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		metrics.RecordSyncConnectorError(c.kind)
		sanitized := sanitizeConnectorError(c.cfg.Password, err)
		c.log.WithField("connector", c.kind).Error("failed to connect: " + sanitized)
		if strings.Contains(strings.ToLower(err.Error()), "permission") ||
			strings.Contains(strings.ToLower(err.Error()), "access denied") {
			return errors.SecurityViolation("security error connecting to " + c.kind + ": " + sanitized)
		}
		return errors.ExternalAPIError(c.kind, fmt.Errorf("%s", sanitized))
	}

	c.db = db
	c.log.WithField("database", c.cfg.Database).Info("connected to external data source")
	return nil
}

func (c *odbcConnector) Extract(ctx context.Context, query string, limit int) ([]Record, error) {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		db = c.db
		c.mu.Unlock()
	}

	resolved, table, err := validateQuery(c.cfg, query, limit)
	if err != nil {
		return nil, err
	}

	queryCtx := ctx
	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}

	rows, err := db.QueryContext(queryCtx, resolved)
	if err != nil {
		metrics.RecordSyncConnectorError(c.kind)
		sanitized := sanitizeConnectorError(c.cfg.Password, err)
		return nil, errors.ExternalAPIError(c.kind, fmt.Errorf("%s", sanitized))
	}
	defer rows.Close()

	if table != "" {
		c.mu.Lock()
		c.accessedTables[strings.ToUpper(table)] = struct{}{}
		c.mu.Unlock()
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.ExternalAPIError(c.kind, err)
	}

	var records []Record
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.ExternalAPIError(c.kind, err)
		}

		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = convertNativeType(raw[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.ExternalAPIError(c.kind, err)
	}

	c.log.WithField("connector", c.kind).WithField("records", len(records)).
		Info("extracted records from external data source")
	return records, nil
}

func (c *odbcConnector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}

	err := c.db.Close()
	c.db = nil

	if len(c.accessedTables) > 0 {
		tables := make([]string, 0, len(c.accessedTables))
		for t := range c.accessedTables {
			tables = append(tables, t)
		}
		c.log.WithField("connector", c.kind).WithField("tables", strings.Join(tables, ",")).
			Info("session accessed tables")
		c.accessedTables = make(map[string]struct{})
	}

	if err != nil {
		return errors.ExternalAPIError(c.kind, err)
	}
	return nil
}

// convertNativeType turns []byte column values the ODBC driver commonly
// returns for numeric/decimal columns into native Go numeric types where
// possible, leaving everything else untouched.
func convertNativeType(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	s := string(b)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
