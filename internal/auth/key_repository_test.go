package auth

import (
	"context"
	"testing"
)

func TestKeyRepository_UpsertAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewKeyRepository(db)

	if err := repo.Upsert(context.Background(), &HmacKey{Origin: "app.example", Secret: "ab12"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.Get(context.Background(), "app.example")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Secret != "ab12" {
		t.Errorf("Secret = %q, want %q", got.Secret, "ab12")
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}

	// Second upsert replaces, does not duplicate.
	if err := repo.Upsert(context.Background(), &HmacKey{Origin: "app.example", Secret: "cd34"}); err != nil {
		t.Fatalf("Upsert() replace error = %v", err)
	}

	got, err = repo.Get(context.Background(), "app.example")
	if err != nil {
		t.Fatalf("Get() after replace error = %v", err)
	}
	if got.Secret != "cd34" {
		t.Errorf("Secret after replace = %q, want %q", got.Secret, "cd34")
	}

	keys, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("len(keys) = %d, want 1", len(keys))
	}
}

func TestKeyRepository_GetNotFound(t *testing.T) {
	db := testDB(t)
	repo := NewKeyRepository(db)

	if _, err := repo.Get(context.Background(), "never.registered"); err != ErrKeyNotFound {
		t.Errorf("Get() error = %v, want ErrKeyNotFound", err)
	}
}

func TestKeyRepository_Delete(t *testing.T) {
	db := testDB(t)
	repo := NewKeyRepository(db)

	if err := repo.Upsert(context.Background(), &HmacKey{Origin: "app.example", Secret: "ab12"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Delete(context.Background(), "app.example"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(context.Background(), "app.example"); err != ErrKeyNotFound {
		t.Errorf("Get() after delete error = %v, want ErrKeyNotFound", err)
	}

	// Deleting a missing key is not an error.
	if err := repo.Delete(context.Background(), "app.example"); err != nil {
		t.Errorf("Delete() missing key error = %v", err)
	}
}

func TestKeyRepository_ListEmpty(t *testing.T) {
	db := testDB(t)
	repo := NewKeyRepository(db)

	keys, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if keys == nil {
		t.Error("List() should return empty slice, not nil")
	}
}
