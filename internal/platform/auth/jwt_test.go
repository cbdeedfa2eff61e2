package auth

import (
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	ts, err := NewHS256Service("test-secret", "test-issuer", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, err := ts.Sign("user-1", "admin")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ts.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "user-1" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	ts1, _ := NewHS256Service("secret-one", "issuer", time.Hour)
	ts2, _ := NewHS256Service("secret-two", "issuer", time.Hour)

	token, err := ts1.Sign("user-1", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ts2.Verify(token); err == nil {
		t.Error("token signed with a different secret must be rejected")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	ts, _ := NewHS256Service("secret", "issuer", time.Nanosecond)
	token, err := ts.Sign("user-1", "admin")
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := ts.Verify(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestNewHS256ServiceValidation(t *testing.T) {
	if _, err := NewHS256Service("", "issuer", time.Hour); err == nil {
		t.Error("empty secret must be rejected")
	}
	if _, err := NewHS256Service("secret", "", time.Hour); err == nil {
		t.Error("empty issuer must be rejected")
	}
	if _, err := NewHS256Service("secret", "issuer", 0); err == nil {
		t.Error("zero ttl must be rejected")
	}
}
