package security

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/partshub/runtime/infrastructure/errors"
)

// PasswordPolicy defines the minimum complexity requirements enforced
// before a password is hashed.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPasswordPolicy returns a reasonable baseline policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: false,
	}
}

// Validate checks a candidate password against the policy, returning a
// structured error naming the first unmet requirement.
func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return errors.InvalidFormat("password", "at least "+itoa(p.MinLength)+" characters")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if p.RequireUpper && !hasUpper {
		return errors.InvalidFormat("password", "at least one uppercase letter")
	}
	if p.RequireLower && !hasLower {
		return errors.InvalidFormat("password", "at least one lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		return errors.InvalidFormat("password", "at least one digit")
	}
	if p.RequireSpecial && !hasSpecial {
		return errors.InvalidFormat("password", "at least one special character")
	}

	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// PasswordHasher hashes and verifies passwords with bcrypt, enforcing a
// policy before hashing.
type PasswordHasher struct {
	cost   int
	policy PasswordPolicy
}

// NewPasswordHasher creates a hasher. A cost outside bcrypt's valid range
// is replaced with bcrypt.DefaultCost.
func NewPasswordHasher(cost int, policy PasswordPolicy) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost, policy: policy}
}

// Hash validates the password against the policy, then hashes it.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if err := h.policy.Validate(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errors.Internal("hash password", err)
	}
	return string(hashed), nil
}

// Verify compares a plaintext password against a bcrypt hash.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether a stored hash was produced with a lower
// cost than the hasher's current cost, so callers can opportunistically
// rehash on successful login.
func (h *PasswordHasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}
