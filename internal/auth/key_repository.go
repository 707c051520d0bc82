package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteKeyRepository implements KeyRepository using SQLite.
type SQLiteKeyRepository struct {
	db *sql.DB
}

// NewKeyRepository creates a new SQLite-backed HMAC key repository.
func NewKeyRepository(db *sql.DB) *SQLiteKeyRepository {
	return &SQLiteKeyRepository{db: db}
}

// Upsert inserts or replaces the key for the origin.
func (r *SQLiteKeyRepository) Upsert(ctx context.Context, key *HmacKey) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hmac_keys (origin, secret, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(origin) DO UPDATE SET secret = excluded.secret, updated_at = excluded.updated_at`,
		key.Origin, key.Secret, now,
	)
	if err != nil {
		return fmt.Errorf("upserting hmac key: %w", err)
	}
	return nil
}

// Get retrieves the key for an origin.
func (r *SQLiteKeyRepository) Get(ctx context.Context, origin string) (*HmacKey, error) {
	var k HmacKey
	var updatedAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT origin, secret, updated_at FROM hmac_keys WHERE origin = ?", origin,
	).Scan(&k.Origin, &k.Secret, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("getting hmac key: %w", err)
	}

	k.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &k, nil
}

// Delete removes the key for an origin. Deleting a missing key is not
// an error.
func (r *SQLiteKeyRepository) Delete(ctx context.Context, origin string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM hmac_keys WHERE origin = ?", origin)
	if err != nil {
		return fmt.Errorf("deleting hmac key: %w", err)
	}
	return nil
}

// List returns all stored keys, used to warm the in-memory map at
// startup.
func (r *SQLiteKeyRepository) List(ctx context.Context) ([]HmacKey, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT origin, secret, updated_at FROM hmac_keys ORDER BY origin")
	if err != nil {
		return nil, fmt.Errorf("listing hmac keys: %w", err)
	}
	defer rows.Close()

	var keys []HmacKey
	for rows.Next() {
		var k HmacKey
		var updatedAt string
		if err := rows.Scan(&k.Origin, &k.Secret, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning hmac key: %w", err)
		}
		k.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hmac keys: %w", err)
	}

	if keys == nil {
		keys = []HmacKey{}
	}
	return keys, nil
}
