package auth

import (
	"strings"
	"testing"
)

func TestHashSecret_RoundTrip(t *testing.T) {
	secret := "4f2a9c81d6e3b7051a2b3c4d5e6f7081"

	hash, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	// Verify the hash is in PHC format
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should start with $argon2id$, got %q", hash)
	}

	// Correct secret should verify
	ok, err := VerifySecret(secret, hash)
	if err != nil {
		t.Fatalf("VerifySecret() error = %v", err)
	}
	if !ok {
		t.Error("VerifySecret() should return true for correct secret")
	}
}

func TestHashSecret_WrongSecret(t *testing.T) {
	hash, err := HashSecret("correct-secret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	ok, err := VerifySecret("wrong-secret", hash)
	if err != nil {
		t.Fatalf("VerifySecret() error = %v", err)
	}
	if ok {
		t.Error("VerifySecret() should return false for wrong secret")
	}
}

func TestHashSecret_UniqueSalts(t *testing.T) {
	secret := "same-secret"

	hash1, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	hash2, err := HashSecret(secret)
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	if hash1 == hash2 {
		t.Error("two hashes of the same secret should have different salts")
	}
}

func TestVerifySecret_InvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$salt$hash"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifySecret("secret", tt.hash)
			if err == nil {
				t.Error("VerifySecret() should return error for invalid hash format")
			}
		})
	}
}

func TestHashSecret_PHCFormat(t *testing.T) {
	hash, err := HashSecret("test")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("PHC format should have 6 $-delimited parts, got %d: %q", len(parts), hash)
	}

	if parts[1] != "argon2id" {
		t.Errorf("algorithm should be argon2id, got %q", parts[1])
	}

	if parts[2] != "v=19" {
		t.Errorf("version should be v=19, got %q", parts[2])
	}

	if parts[3] != "m=65536,t=3,p=1" {
		t.Errorf("params should be m=65536,t=3,p=1, got %q", parts[3])
	}
}
