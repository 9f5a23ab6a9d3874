package store

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestJWTSessionRoundTrip(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Hour)
	token, err := s.NewSession("user-42")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("verify session: ok=%v err=%v", ok, err)
	}
	if userID != "user-42" {
		t.Fatalf("subject = %q, want user-42", userID)
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTSessionStore("secret-a", time.Hour)
	verifier := NewJWTSessionStore("secret-b", time.Hour)
	token, err := issuer.NewSession("user-42")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := verifier.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("token signed with another secret should be rejected")
	}
}

func TestJWTSessionRejectsExpiredToken(t *testing.T) {
	s := NewJWTSessionStore("test-secret", -time.Minute)
	token, err := s.NewSession("user-42")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("expired token should be rejected")
	}
}

func TestJWTSessionRejectsUnsignedAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	s := NewJWTSessionStore("test-secret", time.Hour)
	if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
		t.Fatalf("alg=none token should be rejected")
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	s := NewJWTSessionStore("test-secret", time.Hour)
	for _, token := range []string{"", "   ", "not.a.jwt", "a.b"} {
		if _, ok, err := s.GetUserIDByToken(token); ok || err == nil {
			t.Fatalf("token %q should be rejected", token)
		}
	}
}

func TestJWTSessionDefaultTTLIsSevenDays(t *testing.T) {
	s := NewJWTSessionStore("test-secret", 0)
	if s.ttl != 7*24*time.Hour {
		t.Fatalf("default ttl = %v, want 168h", s.ttl)
	}
}
