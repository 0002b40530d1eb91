package auth

import (
	"testing"
	"time"
)

func TestRevocationStore_RevokeAndCheck(t *testing.T) {
	s := NewRevocationStore(0)
	defer s.Close()

	if s.IsRevoked("jti-1") {
		t.Fatal("nothing revoked yet")
	}
	s.Revoke("jti-1", time.Now().Add(time.Hour))
	s.Revoke("", time.Now().Add(time.Hour))

	if !s.IsRevoked("jti-1") {
		t.Error("expected jti-1 to be revoked")
	}
	if s.Count() != 1 {
		t.Errorf("empty ids are ignored, expected 1 entry, got %d", s.Count())
	}
}

func TestRevocationStore_SweepDropsExpired(t *testing.T) {
	s := NewRevocationStore(0)
	defer s.Close()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Revoke("expired", now.Add(-time.Minute))
	s.Revoke("live", now.Add(time.Minute))
	s.sweep()

	if s.IsRevoked("expired") {
		t.Error("expired entry should be swept")
	}
	if !s.IsRevoked("live") {
		t.Error("live entry should remain")
	}
}

func TestRevocationStore_CloseTwice(t *testing.T) {
	s := NewRevocationStore(time.Hour)
	s.Close()
	s.Close()
}
