// Package validation provides the hand-written validation engine:
// string/slice/numeric helpers and a multi-error collector for chat and
// sync-engine DTOs (ownership checks, pattern matches against shared
// regexes, batch field checks). No struct-tag validation is used.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/partshub/runtime/infrastructure/errors"
)

// =============================================================================
// String Validation Helpers
// =============================================================================

// RequireString checks if a string value is non-empty after trimming.
func RequireString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.MissingParameter(fieldName)
	}
	return nil
}

// RequireAndTrim checks if a string is non-empty and returns the trimmed value.
func RequireAndTrim(value, fieldName string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", errors.MissingParameter(fieldName)
	}
	return trimmed, nil
}

// ValidateLength checks if a string length is within bounds.
// Pass 0 for min or max to skip that check.
func ValidateLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return errors.InvalidFormat(fieldName, "at least "+itoa(min)+" characters")
	}
	if max > 0 && length > max {
		return errors.InvalidFormat(fieldName, "at most "+itoa(max)+" characters")
	}
	return nil
}

// ValidatePattern checks if a string matches a regex pattern.
func ValidatePattern(value, fieldName string, pattern *regexp.Regexp, message string) error {
	if !pattern.MatchString(value) {
		if message == "" {
			message = "a valid format"
		}
		return errors.InvalidFormat(fieldName, message)
	}
	return nil
}

// =============================================================================
// Slice Validation Helpers
// =============================================================================

// ValidateNonEmpty checks if a slice has at least one element.
func ValidateNonEmpty[T any](slice []T, fieldName string) error {
	if len(slice) == 0 {
		return errors.InvalidInput(fieldName, "must not be empty")
	}
	return nil
}

// ValidateSliceLength checks if a slice length is within bounds.
func ValidateSliceLength[T any](slice []T, fieldName string, min, max int) error {
	length := len(slice)
	if min > 0 && length < min {
		return errors.InvalidInput(fieldName, "must have at least "+itoa(min)+" items")
	}
	if max > 0 && length > max {
		return errors.InvalidInput(fieldName, "must have at most "+itoa(max)+" items")
	}
	return nil
}

// =============================================================================
// Numeric Validation Helpers
// =============================================================================

// ValidatePositive checks if a number is positive (> 0).
func ValidatePositive[T ~int | ~int64 | ~float64](value T, fieldName string) error {
	if value <= 0 {
		return errors.InvalidInput(fieldName, "must be positive")
	}
	return nil
}

// ValidateNonNegative checks if a number is non-negative (>= 0).
func ValidateNonNegative[T ~int | ~int64 | ~float64](value T, fieldName string) error {
	if value < 0 {
		return errors.InvalidInput(fieldName, "must not be negative")
	}
	return nil
}

// ValidateRange checks if a number is within a range [min, max].
func ValidateRange[T ~int | ~int64 | ~float64](value T, fieldName string, min, max T) error {
	if value < min || value > max {
		return errors.OutOfRange(fieldName, ftoa(min), ftoa(max))
	}
	return nil
}

// =============================================================================
// Ownership helpers
// =============================================================================

// EnsureOwnership checks that a resource's owning user matches the
// requesting user, used by room/message handlers before mutating or
// deleting a resource that isn't theirs.
func EnsureOwnership(resourceOwnerID, requestUserID, resourceType, resourceID string) error {
	if resourceOwnerID != requestUserID {
		return errors.OwnershipRequired(resourceType, resourceID)
	}
	return nil
}

// =============================================================================
// Common Patterns
// =============================================================================

var (
	// EmailPattern matches basic email format.
	EmailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// UUIDPattern matches UUID format (with or without hyphens).
	UUIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}$`)

	// AlphanumericPattern matches alphanumeric strings with underscores.
	AlphanumericPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

	// SlugPattern matches URL-safe slugs, used for room slugs.
	SlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// ValidateEmail validates an email address format.
func ValidateEmail(value, fieldName string) error {
	if err := RequireString(value, fieldName); err != nil {
		return err
	}
	return ValidatePattern(value, fieldName, EmailPattern, "a valid email address")
}

// ValidateUUID validates a UUID format.
func ValidateUUID(value, fieldName string) error {
	if err := RequireString(value, fieldName); err != nil {
		return err
	}
	return ValidatePattern(value, fieldName, UUIDPattern, "a valid UUID")
}

// ValidateSlug validates a room/resource slug format.
func ValidateSlug(value, fieldName string) error {
	if err := RequireString(value, fieldName); err != nil {
		return err
	}
	return ValidatePattern(value, fieldName, SlugPattern, "a valid slug")
}

// =============================================================================
// Batch Validation
// =============================================================================

// ValidationErrors collects multiple validation errors, used to gather all
// field failures from a request before returning a single response instead
// of failing fast on the first bad field.
type ValidationErrors struct {
	Errors []error
}

// Add adds an error if it's not nil.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error returns the first error or nil.
func (v *ValidationErrors) Error() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v.Errors[0]
}

// All returns all collected errors.
func (v *ValidationErrors) All() []error {
	return v.Errors
}

// NewValidator creates a new ValidationErrors collector.
func NewValidator() *ValidationErrors {
	return &ValidationErrors{}
}

// =============================================================================
// Internal helpers
// =============================================================================

// itoa converts a non-negative int to a string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ftoa converts a numeric value to string for error messages.
func ftoa[T ~int | ~int64 | ~float64](v T) string {
	switch any(v).(type) {
	case int, int64:
		return itoa(int(v))
	default:
		return itoa(int(v))
	}
}
