package validation

import (
	"testing"

	"github.com/partshub/runtime/infrastructure/errors"
)

func TestRequireString(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		fieldName string
		wantErr   bool
	}{
		{"valid", "hello", "field", false},
		{"empty", "", "field", true},
		{"whitespace only", "   ", "field", true},
		{"with spaces", "  hello  ", "field", false},
		{"tabs", "\t\n", "field", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireString(tt.value, tt.fieldName)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequireString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.IsServiceError(err) {
				t.Errorf("RequireString() error should be a ServiceError")
			}
		})
	}
}

func TestRequireAndTrim(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		fieldName string
		want      string
		wantErr   bool
	}{
		{"valid", "hello", "field", "hello", false},
		{"with spaces", "  hello  ", "field", "hello", false},
		{"empty", "", "field", "", true},
		{"whitespace only", "   ", "field", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RequireAndTrim(tt.value, tt.fieldName)
			if (err != nil) != tt.wantErr {
				t.Errorf("RequireAndTrim() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RequireAndTrim() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateLength(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		min     int
		max     int
		wantErr bool
	}{
		{"within bounds", "hello", 1, 10, false},
		{"exact min", "hi", 2, 10, false},
		{"exact max", "hello", 1, 5, false},
		{"too short", "hi", 5, 10, true},
		{"too long", "hello world", 1, 5, true},
		{"no min check", "a", 0, 10, false},
		{"no max check", "hello world", 1, 0, false},
		{"unicode", "你好世界", 2, 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLength(tt.value, "field", tt.min, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLength() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePattern(t *testing.T) {
	if err := ValidatePattern("abc123", "field", AlphanumericPattern, ""); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := ValidatePattern("abc-123", "field", AlphanumericPattern, ""); err == nil {
		t.Error("expected pattern mismatch error")
	}
}

func TestValidateNonEmpty(t *testing.T) {
	if err := ValidateNonEmpty([]int{1}, "field"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidateNonEmpty([]int{}, "field"); err == nil {
		t.Error("expected error for empty slice")
	}
}

func TestValidateSliceLength(t *testing.T) {
	if err := ValidateSliceLength([]int{1, 2}, "field", 1, 3); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidateSliceLength([]int{1, 2, 3, 4}, "field", 1, 3); err == nil {
		t.Error("expected error for too many items")
	}
}

func TestValidatePositive(t *testing.T) {
	if err := ValidatePositive(5, "field"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidatePositive(0, "field"); err == nil {
		t.Error("expected error for zero")
	}
	if err := ValidatePositive(-1, "field"); err == nil {
		t.Error("expected error for negative")
	}
}

func TestValidateNonNegative(t *testing.T) {
	if err := ValidateNonNegative(0, "field"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidateNonNegative(-1, "field"); err == nil {
		t.Error("expected error for negative")
	}
}

func TestValidateRange(t *testing.T) {
	if err := ValidateRange(5, "field", 1, 10); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := ValidateRange(15, "field", 1, 10); err == nil {
		t.Error("expected error for out of range")
	}
}

func TestEnsureOwnership(t *testing.T) {
	if err := EnsureOwnership("user-1", "user-1", "room", "room-1"); err != nil {
		t.Errorf("expected no error for matching owner, got %v", err)
	}
	if err := EnsureOwnership("user-1", "user-2", "room", "room-1"); err == nil {
		t.Error("expected ownership error for mismatched owner")
	}
}

func TestValidateEmail(t *testing.T) {
	if err := ValidateEmail("user@example.com", "email"); err != nil {
		t.Errorf("expected valid email, got %v", err)
	}
	if err := ValidateEmail("not-an-email", "email"); err == nil {
		t.Error("expected error for invalid email")
	}
}

func TestValidateUUID(t *testing.T) {
	if err := ValidateUUID("550e8400-e29b-41d4-a716-446655440000", "id"); err != nil {
		t.Errorf("expected valid UUID, got %v", err)
	}
	if err := ValidateUUID("not-a-uuid", "id"); err == nil {
		t.Error("expected error for invalid UUID")
	}
}

func TestValidateSlug(t *testing.T) {
	if err := ValidateSlug("parts-catalog", "slug"); err != nil {
		t.Errorf("expected valid slug, got %v", err)
	}
	if err := ValidateSlug("Not A Slug!", "slug"); err == nil {
		t.Error("expected error for invalid slug")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidator()
	if v.HasErrors() {
		t.Error("expected no errors initially")
	}

	v.Add(nil)
	if v.HasErrors() {
		t.Error("adding nil should not register an error")
	}

	v.Add(errors.MissingParameter("name"))
	v.Add(errors.InvalidInput("age", "must be positive"))

	if !v.HasErrors() {
		t.Fatal("expected errors after adding")
	}
	if len(v.All()) != 2 {
		t.Errorf("expected 2 errors, got %d", len(v.All()))
	}
	if v.Error() == nil {
		t.Error("expected first error to be non-nil")
	}
}
