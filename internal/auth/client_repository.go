package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClientRepository defines the interface for OAuth client persistence.
type ClientRepository interface {
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id string) (*Client, error)
	GetByOrigin(ctx context.Context, origin string) (*Client, error)
	Delete(ctx context.Context, id string) error
}

// SQLiteClientRepository implements ClientRepository using SQLite.
type SQLiteClientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new SQLite-backed client repository.
func NewClientRepository(db *sql.DB) *SQLiteClientRepository {
	return &SQLiteClientRepository{db: db}
}

// Create inserts a new client record. The ID is generated if empty.
func (r *SQLiteClientRepository) Create(ctx context.Context, client *Client) error {
	if client.ID == "" {
		client.ID = "cl-" + uuid.NewString()[:16]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	client.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO oauth_clients (id, origin, secret_hash, application_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		client.ID, client.Origin, client.SecretHash,
		nullString(client.ApplicationName), now,
	)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	return nil
}

// GetByID retrieves a client by its ID.
func (r *SQLiteClientRepository) GetByID(ctx context.Context, id string) (*Client, error) {
	return r.get(ctx, "id", id)
}

// GetByOrigin retrieves the client registered for an origin.
func (r *SQLiteClientRepository) GetByOrigin(ctx context.Context, origin string) (*Client, error) {
	return r.get(ctx, "origin", origin)
}

func (r *SQLiteClientRepository) get(ctx context.Context, column, value string) (*Client, error) {
	var c Client
	var appName sql.NullString
	var createdAt string

	err := r.db.QueryRowContext(ctx,
		"SELECT id, origin, secret_hash, application_name, created_at FROM oauth_clients WHERE "+column+" = ?",
		value,
	).Scan(&c.ID, &c.Origin, &c.SecretHash, &appName, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("getting client: %w", err)
	}

	if appName.Valid {
		c.ApplicationName = appName.String
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &c, nil
}

// Delete removes a client. Issued tokens cascade via the schema's
// foreign key, so revoking a client also revokes everything it holds.
func (r *SQLiteClientRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM oauth_clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
	}
	return nil
}
