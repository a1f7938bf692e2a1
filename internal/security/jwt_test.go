package security

import (
	"testing"
	"time"
)

func TestJWTManager_MintAndVerify(t *testing.T) {
	mgr, err := NewJWTManager("test-secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pair, err := mgr.Mint("user-1", "alice", "member")
	if err != nil {
		t.Fatalf("unexpected mint error: %v", err)
	}

	claims, err := mgr.Verify(pair.AccessToken, "access")
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" || claims.Role != "member" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestJWTManager_RejectsWrongUse(t *testing.T) {
	mgr, _ := NewJWTManager("test-secret", time.Minute, time.Hour)
	pair, _ := mgr.Mint("user-1", "alice", "member")

	if _, err := mgr.Verify(pair.AccessToken, "refresh"); err == nil {
		t.Error("expected error verifying access token as refresh")
	}
}

func TestJWTManager_RevokeBlacklists(t *testing.T) {
	mgr, _ := NewJWTManager("test-secret", time.Minute, time.Hour)
	pair, _ := mgr.Mint("user-1", "alice", "member")

	claims, err := mgr.Verify(pair.AccessToken, "access")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mgr.Revoke(claims)

	if _, err := mgr.Verify(pair.AccessToken, "access"); err == nil {
		t.Error("expected error verifying revoked token")
	}
}

func TestJWTManager_Refresh(t *testing.T) {
	mgr, _ := NewJWTManager("test-secret", time.Minute, time.Hour)
	pair, _ := mgr.Mint("user-1", "alice", "member")

	newPair, err := mgr.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newPair.AccessToken == "" {
		t.Error("expected a new access token")
	}

	if _, err := mgr.Verify(pair.RefreshToken, "refresh"); err == nil {
		t.Error("expected rotated refresh token to be blacklisted")
	}
}

func TestJWTManager_RejectsEmptySecret(t *testing.T) {
	if _, err := NewJWTManager("", time.Minute, time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestJWTManager_RejectsTamperedSignature(t *testing.T) {
	mgr, _ := NewJWTManager("test-secret", time.Minute, time.Hour)
	pair, _ := mgr.Mint("user-1", "alice", "member")

	other, _ := NewJWTManager("different-secret", time.Minute, time.Hour)
	if _, err := other.Verify(pair.AccessToken, "access"); err == nil {
		t.Error("expected error verifying token signed with a different secret")
	}
}
