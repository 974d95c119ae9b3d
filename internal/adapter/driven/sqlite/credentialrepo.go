package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// TableName is the table created by the embedded migrations.
const TableName = "user_api_keys"

// timestampLayout matches strftime('%Y-%m-%dT%H:%M:%fZ') used by the schema.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Upsert inserts the credential or overwrites the api key of the existing row
// for the same user. created_at survives the overwrite; updated_at is refreshed.
func (r *CredentialRepo) Upsert(ctx context.Context, rec model.CredentialRecord) (model.Confirmation, error) {
	const query = `
		INSERT INTO user_api_keys (user_id, api_key) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			api_key = excluded.api_key,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		RETURNING user_id, created_at, updated_at`

	var conf model.Confirmation
	var createdAt, updatedAt string
	err := r.db.Writer.QueryRowContext(ctx, query, rec.UserID, rec.APIKey).Scan(&conf.UserID, &createdAt, &updatedAt)
	if err != nil {
		return model.Confirmation{}, fmt.Errorf("upsert credential for user %q: %w", rec.UserID, err)
	}

	if conf.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Confirmation{}, fmt.Errorf("parse created_at: %w", err)
	}
	if conf.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Confirmation{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return conf, nil
}

// Get returns the stored credential for userID, or nil if none exists.
func (r *CredentialRepo) Get(ctx context.Context, userID string) (*model.CredentialRecord, error) {
	const query = `SELECT user_id, api_key, created_at, updated_at FROM user_api_keys WHERE user_id = ?`

	var rec model.CredentialRecord
	var createdAt, updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, userID).Scan(&rec.UserID, &rec.APIKey, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential for user %q: %w", userID, err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &rec, nil
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		timestampLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
