package security

import "testing"

func TestAPIKeyIssuer_GenerateAndVerify(t *testing.T) {
	issuer := NewAPIKeyIssuer([]byte("signing-key"), "psk_")

	key, err := issuer.Generate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !issuer.HasPrefix(key.Plaintext) {
		t.Errorf("expected generated key to have prefix, got %s", key.Plaintext)
	}

	if !issuer.Verify(key.Plaintext, key.Hash) {
		t.Error("expected key to verify against its own hash")
	}
	if issuer.Verify("not-the-key", key.Hash) {
		t.Error("expected wrong key to fail verification")
	}
}

func TestAPIKeyIssuer_DefaultPrefix(t *testing.T) {
	issuer := NewAPIKeyIssuer([]byte("signing-key"), "")
	key, _ := issuer.Generate()
	if !issuer.HasPrefix(key.Plaintext) {
		t.Error("expected default prefix to be applied")
	}
}
