package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func newTestHmacManager(t *testing.T) *HmacManager {
	t.Helper()
	m, err := NewHmacManager(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("NewHmacManager() error = %v", err)
	}
	return m
}

func TestComputeMac_GoldenValues(t *testing.T) {
	// Digests computed with an independent HMAC-SHA256 implementation
	// over the decoded key/nonce bytes. They must never change.
	tests := []struct {
		name   string
		secret string
		nonce  string
		want   string
	}{
		{
			name:   "reference vector",
			secret: "ab12",
			nonce:  "00",
			want:   "8109917018eca5244dad03b87643c4b2c4c62e25b0060f7aec964d393a0a9374",
		},
		{
			name:   "multi byte nonce",
			secret: "0abc",
			nonce:  "0102",
			want:   "b772122f092bce37a9c33837ab646f40828439d5895b0e965d8ba351445e57a4",
		},
		{
			name:   "longer key",
			secret: "deadbeef",
			nonce:  "cafe",
			want:   "ea5520f9b0549a56b7e2fed039f7880f0702b71a176e6e9013bfe72ff63072e2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestHmacManager(t)
			if err := m.UpdateKey(context.Background(), "app.example", tt.secret); err != nil {
				t.Fatalf("UpdateKey() error = %v", err)
			}

			got, err := m.ComputeMac("app.example", tt.nonce)
			if err != nil {
				t.Fatalf("ComputeMac() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ComputeMac() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComputeMac_MatchesReference(t *testing.T) {
	m := newTestHmacManager(t)

	secret := "4f2a9c81d6e3b705"
	nonce := "1a2b3c4d"
	if err := m.UpdateKey(context.Background(), "app.example", secret); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}

	got, err := m.ComputeMac("app.example", nonce)
	if err != nil {
		t.Fatalf("ComputeMac() error = %v", err)
	}

	key, _ := hex.DecodeString(secret)
	msg, _ := hex.DecodeString(nonce)
	ref := hmac.New(sha256.New, key)
	ref.Write(msg)
	want := hex.EncodeToString(ref.Sum(nil))

	if got != want {
		t.Errorf("ComputeMac() = %q, want reference %q", got, want)
	}
}

func TestComputeMac_OddLengthHex(t *testing.T) {
	m := newTestHmacManager(t)

	// "abc" must decode as 0x0a 0xbc: odd-length hex is padded with a
	// leading zero, not rejected.
	if err := m.UpdateKey(context.Background(), "app.example", "abc"); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}

	got, err := m.ComputeMac("app.example", "1")
	if err != nil {
		t.Fatalf("ComputeMac() error = %v", err)
	}

	ref := hmac.New(sha256.New, []byte{0x0a, 0xbc})
	ref.Write([]byte{0x01})
	want := hex.EncodeToString(ref.Sum(nil))

	if got != want {
		t.Errorf("ComputeMac() = %q, want %q", got, want)
	}
}

func TestComputeMac_UnknownOrigin(t *testing.T) {
	m := newTestHmacManager(t)

	_, err := m.ComputeMac("never.registered", "00")
	if err != ErrKeyNotFound {
		t.Errorf("ComputeMac() error = %v, want ErrKeyNotFound", err)
	}
}

func TestUpdateKey_EmptySecretClears(t *testing.T) {
	m := newTestHmacManager(t)

	if err := m.UpdateKey(context.Background(), "app.example", "ab12"); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}
	if !m.UsesMac("app.example") {
		t.Fatal("UsesMac() = false after key registration")
	}

	if err := m.UpdateKey(context.Background(), "app.example", ""); err != nil {
		t.Fatalf("UpdateKey(empty) error = %v", err)
	}
	if m.UsesMac("app.example") {
		t.Error("UsesMac() = true after explicit clear")
	}

	if _, err := m.ComputeMac("app.example", "00"); err != ErrKeyNotFound {
		t.Errorf("ComputeMac() after clear error = %v, want ErrKeyNotFound", err)
	}
}

func TestUpdateKey_EmptyOrigin(t *testing.T) {
	m := newTestHmacManager(t)

	if err := m.UpdateKey(context.Background(), "", "ab12"); err != ErrInvalidOrigin {
		t.Errorf("UpdateKey() error = %v, want ErrInvalidOrigin", err)
	}
}

func TestUpdateKey_ReplacesSecret(t *testing.T) {
	m := newTestHmacManager(t)

	if err := m.UpdateKey(context.Background(), "app.example", "ab12"); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}
	first, err := m.ComputeMac("app.example", "00")
	if err != nil {
		t.Fatalf("ComputeMac() error = %v", err)
	}

	if err := m.UpdateKey(context.Background(), "app.example", "cd34"); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}
	second, err := m.ComputeMac("app.example", "00")
	if err != nil {
		t.Fatalf("ComputeMac() error = %v", err)
	}

	if first == second {
		t.Error("MAC should change when the key is replaced")
	}
}

func TestVerifyMac(t *testing.T) {
	m := newTestHmacManager(t)

	if err := m.UpdateKey(context.Background(), "app.example", "ab12"); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}

	ok, err := m.VerifyMac("app.example", "00",
		"8109917018eca5244dad03b87643c4b2c4c62e25b0060f7aec964d393a0a9374")
	if err != nil {
		t.Fatalf("VerifyMac() error = %v", err)
	}
	if !ok {
		t.Error("VerifyMac() = false for correct MAC")
	}

	ok, err = m.VerifyMac("app.example", "00", "0000000000000000")
	if err != nil {
		t.Fatalf("VerifyMac() error = %v", err)
	}
	if ok {
		t.Error("VerifyMac() = true for wrong MAC")
	}
}

func TestHmacManager_PersistsAndReloads(t *testing.T) {
	db := testDB(t)
	repo := NewKeyRepository(db)

	m1, err := NewHmacManager(context.Background(), repo, nil)
	if err != nil {
		t.Fatalf("NewHmacManager() error = %v", err)
	}
	if err := m1.UpdateKey(context.Background(), "app.example", "ab12"); err != nil {
		t.Fatalf("UpdateKey() error = %v", err)
	}

	// A fresh manager over the same repository sees the key.
	m2, err := NewHmacManager(context.Background(), repo, nil)
	if err != nil {
		t.Fatalf("NewHmacManager() error = %v", err)
	}
	if !m2.UsesMac("app.example") {
		t.Error("reloaded manager should know the persisted key")
	}

	got, err := m2.ComputeMac("app.example", "00")
	if err != nil {
		t.Fatalf("ComputeMac() error = %v", err)
	}
	want := "8109917018eca5244dad03b87643c4b2c4c62e25b0060f7aec964d393a0a9374"
	if got != want {
		t.Errorf("ComputeMac() = %q, want %q", got, want)
	}

	// Clearing through one manager removes the stored row too.
	if err := m2.UpdateKey(context.Background(), "app.example", ""); err != nil {
		t.Fatalf("UpdateKey(empty) error = %v", err)
	}
	if _, err := repo.Get(context.Background(), "app.example"); err != ErrKeyNotFound {
		t.Errorf("repo.Get() after clear error = %v, want ErrKeyNotFound", err)
	}
}
