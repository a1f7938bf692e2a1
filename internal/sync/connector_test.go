package sync

import (
	"strings"
	"testing"
)

func TestValidateQuery_BareTableChecksWhitelist(t *testing.T) {
	cfg := ODBCConfig{AllowedTables: []string{"PRODUCTS"}}

	if _, _, err := validateQuery(cfg, "PRODUCTS", 0); err != nil {
		t.Fatalf("expected whitelisted table to pass, got %v", err)
	}
	if _, _, err := validateQuery(cfg, "SECRET_TABLE", 0); err == nil {
		t.Fatal("expected non-whitelisted table to be rejected")
	}
}

func TestValidateQuery_BareTableAppliesLimit(t *testing.T) {
	cfg := ODBCConfig{}
	resolved, table, err := validateQuery(cfg, "PRODUCTS", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table != "PRODUCTS" {
		t.Errorf("expected resolved table PRODUCTS, got %s", table)
	}
	if !strings.Contains(resolved, "FETCH FIRST 100 ROWS ONLY") {
		t.Errorf("expected fetch-first clause, got %s", resolved)
	}
}

func TestValidateQuery_RejectsWriteVerbs(t *testing.T) {
	cfg := ODBCConfig{}
	_, _, err := validateQuery(cfg, "DELETE FROM PRODUCTS", 0)
	if err == nil {
		t.Fatal("expected write verb to be rejected")
	}
}

func TestValidateQuery_AllowsFullSelect(t *testing.T) {
	cfg := ODBCConfig{}
	resolved, table, err := validateQuery(cfg, "SELECT * FROM PRODUCTS WHERE is_active = 1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table != "" {
		t.Errorf("expected no bare-table name for a full query, got %s", table)
	}
	if resolved != "SELECT * FROM PRODUCTS WHERE is_active = 1" {
		t.Errorf("expected query to pass through unchanged, got %s", resolved)
	}
}

func TestSanitizeConnectorError_RedactsPassword(t *testing.T) {
	err := &pipelineTestError{"connection failed: PWD=supersecret not accepted"}
	sanitized := sanitizeConnectorError("supersecret", err)
	if strings.Contains(sanitized, "supersecret") {
		t.Errorf("expected password redacted, got %s", sanitized)
	}
}

func TestConvertNativeType_ParsesNumericByteSlice(t *testing.T) {
	if got := convertNativeType([]byte("42.5")); got != 42.5 {
		t.Errorf("expected 42.5, got %v", got)
	}
	if got := convertNativeType([]byte("not-a-number")); got != "not-a-number" {
		t.Errorf("expected passthrough string, got %v", got)
	}
	if got := convertNativeType(42); got != 42 {
		t.Errorf("expected passthrough non-byte value, got %v", got)
	}
}
