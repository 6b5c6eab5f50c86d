package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	h, err := HashPassword("admin123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h == "admin123" {
		t.Fatal("hash must not equal the plaintext")
	}

	ok, err := VerifyPassword("admin123", h)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("expected password to verify")
	}

	ok, err = VerifyPassword("wrong", h)
	if err != nil {
		t.Fatalf("VerifyPassword(wrong): %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should differ")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"too short", "not-a-hash"},
		{"bad prefix", "$9$" + strings.Repeat("a", 60)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyPassword("secret", tt.hash)
			if ok {
				t.Fatal("malformed hash must never verify")
			}
			var hashErr *HashError
			if !errors.As(err, &hashErr) {
				t.Fatalf("expected *HashError, got %v", err)
			}
			if hashErr.Op != "verify" {
				t.Errorf("expected op verify, got %q", hashErr.Op)
			}
		})
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", 100))
	var hashErr *HashError
	if !errors.As(err, &hashErr) {
		t.Fatalf("expected *HashError for oversized password, got %v", err)
	}
}
