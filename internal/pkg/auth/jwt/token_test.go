package jwt

import (
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestVerifyRoundTrip(t *testing.T) {
	token, err := GenerateToken(&Payload{
		UserID:      "user-1",
		DisplayName: "Alice",
		Email:       "alice@example.com",
	}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := NewVerifier(testSecret).Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.DisplayName != "Alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != TokenIssuer {
		t.Fatalf("issuer = %q, want %q", claims.Issuer, TokenIssuer)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(&Payload{UserID: "user-1"}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewVerifier("other-secret").Verify(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := GenerateToken(&Payload{UserID: "user-1"}, testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewVerifier(testSecret).Verify(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	token, err := GenerateToken(&Payload{DisplayName: "ghost"}, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewVerifier(testSecret).Verify(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if _, err := NewVerifier(testSecret).Verify("not.a.token"); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}
