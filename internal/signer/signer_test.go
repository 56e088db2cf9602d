package signer

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHS256RoundTrip(t *testing.T) {
	s, err := New([]byte("test-secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, kid, err := s.Sign(jwt.MapClaims{"sub": "u1"}, HS256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if kid != "" {
		t.Fatalf("HS256 tokens must carry no kid, got %q", kid)
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims["sub"] != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestRS256RoundTripAndKid(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	token, kid, err := s.Sign(jwt.MapClaims{"sub": "u1"}, RS256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if kid == "" {
		t.Fatal("RS256 tokens must carry a kid")
	}
	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims["sub"] != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSameDayRotationAppendsSuffix(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	kid1, err := s.Rotate(now)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	kid2, err := s.Rotate(now)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if kid1 != "2026-07-29" {
		t.Fatalf("first kid = %q, want 2026-07-29", kid1)
	}
	if kid2 != "2026-07-29-2" {
		t.Fatalf("second kid = %q, want 2026-07-29-2", kid2)
	}
}

func TestGCNeverRemovesActiveKey(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if _, err := s.Rotate(old); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	n := s.GC(time.Now())
	if n != 0 {
		t.Fatalf("GC must never remove the active key, removed %d", n)
	}
	if _, err := s.ActiveSigningKey(); err != nil {
		t.Fatalf("active key must still be resolvable: %v", err)
	}
}

func TestGCRemovesOldInactiveKeys(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if _, err := s.Rotate(old); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	// Rotate again (recent) to deactivate the old key.
	if _, err := s.Rotate(time.Now()); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	n := s.GC(time.Now().Add(-24 * time.Hour))
	if n != 1 {
		t.Fatalf("expected 1 key removed, got %d", n)
	}
}

func TestVerifyUnknownKidIsInvalid(t *testing.T) {
	s, _ := New(nil)
	other, _ := New(nil)
	_, kid, err := other.Sign(jwt.MapClaims{"sub": "u1"}, RS256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	_ = kid
	token, _, _ := other.Sign(jwt.MapClaims{"sub": "u1"}, RS256)
	if _, err := s.Verify(token); err == nil {
		t.Fatal("expected verification against a foreign key set to fail")
	}
}

func TestPublicKeySetContainsActiveKey(t *testing.T) {
	s, _ := New(nil)
	_, kid, err := s.Sign(jwt.MapClaims{"sub": "u1"}, RS256)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	set := s.PublicKeySet()
	found := false
	for _, k := range set.Keys {
		if k.KeyID == kid {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected JWKS to contain kid %q", kid)
	}
}
