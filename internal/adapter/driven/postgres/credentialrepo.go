// Package postgres implements the CredentialStore port directly on PostgreSQL
// using pgx. The privileged token is used as the database role's password.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// querier is the subset of pgxpool.Pool used by CredentialRepo.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialRepo upserts credentials into a PostgreSQL table.
type CredentialRepo struct {
	db    querier
	table string
}

// NewCredentialRepo creates a CredentialRepo writing to table.
func NewCredentialRepo(db querier, table string) *CredentialRepo {
	return &CredentialRepo{db: db, table: table}
}

// Upsert inserts the credential or overwrites the api key of the existing row.
// The uniqueness constraint on user_id serializes concurrent writers.
func (r *CredentialRepo) Upsert(ctx context.Context, rec model.CredentialRecord) (model.Confirmation, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, api_key) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			updated_at = now()
		RETURNING user_id::text, created_at, updated_at`,
		pgx.Identifier{r.table}.Sanitize(),
	)

	var conf model.Confirmation
	err := r.db.QueryRow(ctx, query, rec.UserID, rec.APIKey).Scan(&conf.UserID, &conf.CreatedAt, &conf.UpdatedAt)
	if err != nil {
		return model.Confirmation{}, describe(err)
	}

	conf.CreatedAt = conf.CreatedAt.UTC()
	conf.UpdatedAt = conf.UpdatedAt.UTC()
	return conf, nil
}

// describe rewrites well-known PostgreSQL failures into readable diagnostics.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("upsert credential: %w", err)
	}

	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("conflict while storing the key (unique constraint %s): %w", pgErr.ConstraintName, err)
	case "22001":
		return fmt.Errorf("the api key is too long for the store: %w", err)
	case "22P02":
		return fmt.Errorf("the user id is not valid for the store: %w", err)
	case "42501":
		return fmt.Errorf("permission denied for the store role: %w", err)
	case "42P01":
		return fmt.Errorf("credential table does not exist: %w", err)
	default:
		return fmt.Errorf("upsert credential (%s): %w", pgErr.Code, err)
	}
}
