package security

import (
	"encoding/hex"
	"strings"

	"github.com/partshub/runtime/infrastructure/errors"
	"github.com/partshub/runtime/internal/crypto"
)

// APIKey is a generated key together with the hash stored server-side.
// Only Hash is persisted; Plaintext is returned to the caller exactly once.
type APIKey struct {
	Plaintext string
	Hash      string
}

// APIKeyIssuer generates and verifies API keys using HMAC-SHA256 over a
// per-deployment signing key, so the stored hash never discloses the key.
type APIKeyIssuer struct {
	signingKey []byte
	prefix     string
}

// NewAPIKeyIssuer creates an issuer. prefix is prepended to every
// generated key (e.g. "psk_") so keys are recognizable at a glance.
func NewAPIKeyIssuer(signingKey []byte, prefix string) *APIKeyIssuer {
	if prefix == "" {
		prefix = "psk_"
	}
	return &APIKeyIssuer{signingKey: signingKey, prefix: prefix}
}

// Generate creates a new API key and its verification hash.
func (i *APIKeyIssuer) Generate() (*APIKey, error) {
	raw, err := crypto.GenerateRandomBytes(32)
	if err != nil {
		return nil, errors.Internal("generate api key", err)
	}

	plaintext := i.prefix + hex.EncodeToString(raw)
	return &APIKey{
		Plaintext: plaintext,
		Hash:      i.hash(plaintext),
	}, nil
}

// Verify reports whether the plaintext key matches the stored hash.
func (i *APIKeyIssuer) Verify(plaintext, storedHash string) bool {
	return SubtleEqual(i.hash(plaintext), storedHash)
}

func (i *APIKeyIssuer) hash(plaintext string) string {
	return hex.EncodeToString(crypto.HMACSign(i.signingKey, []byte(plaintext)))
}

// HasPrefix reports whether a candidate string looks like one of this
// issuer's API keys, useful for routing auth middleware between API-key
// and bearer-token paths without attempting both.
func (i *APIKeyIssuer) HasPrefix(candidate string) bool {
	return strings.HasPrefix(candidate, i.prefix)
}
