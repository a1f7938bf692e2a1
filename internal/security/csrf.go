package security

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/partshub/runtime/infrastructure/errors"
	"github.com/partshub/runtime/internal/crypto"
)

// CSRFManager issues and verifies double-submit CSRF tokens bound to a
// session identifier and a time window, using the same HMAC primitive as
// API keys.
type CSRFManager struct {
	signingKey []byte
	ttl        time.Duration
}

// NewCSRFManager creates a manager with the given token lifetime.
func NewCSRFManager(signingKey []byte, ttl time.Duration) *CSRFManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CSRFManager{signingKey: signingKey, ttl: ttl}
}

// Issue creates a token bound to sessionID, valid until it expires.
func (m *CSRFManager) Issue(sessionID string) string {
	expires := time.Now().Add(m.ttl).Unix()
	payload := fmt.Sprintf("%s.%d", sessionID, expires)
	sig := hex.EncodeToString(crypto.HMACSign(m.signingKey, []byte(payload)))
	return fmt.Sprintf("%d.%s", expires, sig)
}

// Verify checks a token against the session it claims to be bound to.
func (m *CSRFManager) Verify(sessionID, token string) error {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return errors.SecurityViolation("malformed csrf token")
	}

	var expires int64
	if _, err := fmt.Sscanf(parts[0], "%d", &expires); err != nil {
		return errors.SecurityViolation("malformed csrf token expiry")
	}

	if time.Now().Unix() > expires {
		return errors.SecurityViolation("csrf token expired")
	}

	payload := fmt.Sprintf("%s.%d", sessionID, expires)
	expectedSig := hex.EncodeToString(crypto.HMACSign(m.signingKey, []byte(payload)))

	if !SubtleEqual(parts[1], expectedSig) {
		return errors.SecurityViolation("csrf token signature mismatch")
	}

	return nil
}
