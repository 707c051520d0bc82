package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE hmac_keys (
			origin TEXT PRIMARY KEY,
			secret TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE oauth_clients (
			id TEXT PRIMARY KEY,
			origin TEXT NOT NULL UNIQUE,
			secret_hash TEXT NOT NULL,
			application_name TEXT,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE access_tokens (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL REFERENCES oauth_clients(id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE INDEX idx_access_tokens_client ON access_tokens(client_id);

		CREATE TABLE token_scopes (
			token_id TEXT NOT NULL REFERENCES access_tokens(id) ON DELETE CASCADE,
			scope TEXT NOT NULL,
			expire_period INTEGER NOT NULL,
			PRIMARY KEY (token_id, scope)
		) STRICT;
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying auth migration: %v", err)
	}

	return db
}

// seedTestClient inserts a client record and returns it.
func seedTestClient(t *testing.T, db *sql.DB, origin string) *Client {
	t.Helper()

	hash, err := HashSecret("test-secret")
	if err != nil {
		t.Fatalf("hashing secret: %v", err)
	}

	repo := NewClientRepository(db)
	client := &Client{
		Origin:          origin,
		SecretHash:      hash,
		ApplicationName: "Test App",
	}
	if err := repo.Create(context.Background(), client); err != nil {
		t.Fatalf("creating test client %s: %v", origin, err)
	}
	return client
}
