package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for access token persistence.
// Tokens are stored with their per-scope expire periods; the raw token
// string is never stored, only its SHA-256 hash.
type TokenRepository interface {
	Create(ctx context.Context, token *AccessToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*AccessToken, error)
	GetByClient(ctx context.Context, clientID string) ([]AccessToken, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForClient(ctx context.Context, clientID string) error
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// Create inserts a new access token and its scope rows in one
// transaction. The ID is generated if empty.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *AccessToken) error {
	if token.ID == "" {
		token.ID = "at-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning token transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO access_tokens (id, client_id, token_hash, created_at)
		 VALUES (?, ?, ?, ?)`,
		token.ID, token.ClientID, token.TokenHash,
		token.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("creating access token: %w", err)
	}

	for _, s := range token.Scopes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO token_scopes (token_id, scope, expire_period)
			 VALUES (?, ?, ?)`,
			token.ID, s.Profile, s.ExpirePeriod,
		); err != nil {
			return fmt.Errorf("creating token scope %q: %w", s.Profile, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing token: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves an access token and its scopes by the
// SHA-256 hash of the raw token.
func (r *SQLiteTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*AccessToken, error) {
	var t AccessToken
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, client_id, token_hash, created_at
		 FROM access_tokens WHERE token_hash = ?`, tokenHash,
	).Scan(&t.ID, &t.ClientID, &t.TokenHash, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("getting access token: %w", err)
	}

	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	t.Scopes, err = r.scopesFor(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByClient returns all tokens issued to a client, scopes included.
func (r *SQLiteTokenRepository) GetByClient(ctx context.Context, clientID string) ([]AccessToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, client_id, token_hash, created_at
		 FROM access_tokens WHERE client_id = ? ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var tokens []AccessToken
	for rows.Next() {
		var t AccessToken
		var createdAt string
		if err := rows.Scan(&t.ID, &t.ClientID, &t.TokenHash, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}

	for i := range tokens {
		tokens[i].Scopes, err = r.scopesFor(ctx, tokens[i].ID)
		if err != nil {
			return nil, err
		}
	}

	if tokens == nil {
		tokens = []AccessToken{}
	}
	return tokens, nil
}

func (r *SQLiteTokenRepository) scopesFor(ctx context.Context, tokenID string) ([]Scope, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT scope, expire_period FROM token_scopes WHERE token_id = ? ORDER BY scope", tokenID)
	if err != nil {
		return nil, fmt.Errorf("listing token scopes: %w", err)
	}
	defer rows.Close()

	var scopes []Scope
	for rows.Next() {
		var s Scope
		if err := rows.Scan(&s.Profile, &s.ExpirePeriod); err != nil {
			return nil, fmt.Errorf("scanning token scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token scopes: %w", err)
	}
	return scopes, nil
}

// Delete removes one token; scope rows cascade.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM access_tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// DeleteAllForClient removes every token issued to a client. Used when
// the client is revoked.
func (r *SQLiteTokenRepository) DeleteAllForClient(ctx context.Context, clientID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM access_tokens WHERE client_id = ?", clientID)
	if err != nil {
		return fmt.Errorf("deleting tokens for client: %w", err)
	}
	return nil
}
