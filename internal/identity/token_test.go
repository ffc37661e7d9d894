package identity

import (
	"testing"
	"time"
)

func TestVerifierRoundTrip(t *testing.T) {
	v, err := NewVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	ident := Context{UserID: "u1", OrganizationID: "org-a", Role: RoleEditor}
	token, err := v.Sign(ident, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != ident {
		t.Fatalf("round trip mismatch: %+v != %+v", got, ident)
	}
}

func TestVerifierRejectsExpired(t *testing.T) {
	now := time.Now()
	v, err := NewVerifier("test-secret", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := v.Sign(Context{UserID: "u1", Role: RoleAnalyst}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := v.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	v1, _ := NewVerifier("secret-one")
	v2, _ := NewVerifier("secret-two")
	token, err := v1.Sign(Context{UserID: "u1", Role: RoleAnalyst}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := v2.Verify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	if _, ok := FromContext(nil); ok {
		t.Fatal("expected no identity on nil context")
	}
	ident := Context{UserID: "u1", OrganizationID: "org-a", Role: RoleOrgAdmin}
	ctx := WithContext(t.Context(), ident)
	got, ok := FromContext(ctx)
	if !ok || got != ident {
		t.Fatalf("context round trip failed: %+v", got)
	}
}
