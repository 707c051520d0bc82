package auth

import (
	"context"
	"testing"
)

func TestClientRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewClientRepository(db)

	hash, err := HashSecret("client-secret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}

	client := &Client{
		Origin:          "app.example",
		SecretHash:      hash,
		ApplicationName: "Example App",
	}
	if err := repo.Create(context.Background(), client); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if client.ID == "" {
		t.Error("client ID should be generated")
	}

	byID, err := repo.GetByID(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Origin != "app.example" {
		t.Errorf("Origin = %q, want %q", byID.Origin, "app.example")
	}
	if byID.ApplicationName != "Example App" {
		t.Errorf("ApplicationName = %q, want %q", byID.ApplicationName, "Example App")
	}

	byOrigin, err := repo.GetByOrigin(context.Background(), "app.example")
	if err != nil {
		t.Fatalf("GetByOrigin() error = %v", err)
	}
	if byOrigin.ID != client.ID {
		t.Errorf("GetByOrigin().ID = %q, want %q", byOrigin.ID, client.ID)
	}
}

func TestClientRepository_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewClientRepository(db)

	if _, err := repo.GetByID(context.Background(), "cl-missing"); err != ErrClientNotFound {
		t.Errorf("GetByID() error = %v, want ErrClientNotFound", err)
	}
	if _, err := repo.GetByOrigin(context.Background(), "never.registered"); err != ErrClientNotFound {
		t.Errorf("GetByOrigin() error = %v, want ErrClientNotFound", err)
	}
}

func TestClientRepository_DuplicateOrigin(t *testing.T) {
	db := testDB(t)
	repo := NewClientRepository(db)

	seedTestClient(t, db, "app.example")

	dup := &Client{Origin: "app.example", SecretHash: "hash"}
	err := repo.Create(context.Background(), dup)
	if !isUniqueViolation(err) {
		t.Errorf("Create() duplicate origin error = %v, want unique violation", err)
	}
}

func TestClientRepository_Delete(t *testing.T) {
	db := testDB(t)
	repo := NewClientRepository(db)
	client := seedTestClient(t, db, "app.example")

	if err := repo.Delete(context.Background(), client.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := repo.GetByID(context.Background(), client.ID); err != ErrClientNotFound {
		t.Errorf("GetByID() after delete error = %v, want ErrClientNotFound", err)
	}
}

func TestClientRepository_EmptyApplicationName(t *testing.T) {
	db := testDB(t)
	repo := NewClientRepository(db)

	client := &Client{Origin: "app.noname", SecretHash: "hash"}
	if err := repo.Create(context.Background(), client); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ApplicationName != "" {
		t.Errorf("ApplicationName = %q, want empty", got.ApplicationName)
	}
}
