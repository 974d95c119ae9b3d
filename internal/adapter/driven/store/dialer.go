// Package store routes a store endpoint to the adapter that understands it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ericfisherdev/keyrelay/internal/adapter/driven/postgres"
	"github.com/ericfisherdev/keyrelay/internal/adapter/driven/postgrest"
	"github.com/ericfisherdev/keyrelay/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StoreDialer = (*Dialer)(nil)

// Dialer picks an adapter by endpoint scheme:
//   - http://, https://           Supabase / PostgREST
//   - postgres://, postgresql://  PostgreSQL via pgx
//   - sqlite://, file:            embedded SQLite
type Dialer struct {
	rest     *postgrest.Dialer
	postgres *postgres.Dialer
	sqlite   *sqlite.Dialer
}

// NewDialer creates a Dialer whose adapters all write to table.
func NewDialer(httpClient *http.Client, table string, logger *slog.Logger) *Dialer {
	return &Dialer{
		rest:     postgrest.NewDialer(httpClient, table),
		postgres: postgres.NewDialer(table, logger),
		sqlite:   sqlite.NewDialer(table, logger),
	}
}

// Dial delegates to the adapter matching endpoint.
func (d *Dialer) Dial(ctx context.Context, endpoint, token string) (driven.CredentialStore, error) {
	if endpoint == "" || token == "" {
		return nil, driven.ErrStoreNotConfigured
	}

	switch {
	case postgrest.IsEndpoint(endpoint):
		return d.rest.Dial(ctx, endpoint, token)
	case postgres.IsEndpoint(endpoint):
		return d.postgres.Dial(ctx, endpoint, token)
	default:
		if _, ok := sqlite.PathFromEndpoint(endpoint); ok {
			return d.sqlite.Dial(ctx, endpoint, token)
		}
		return nil, fmt.Errorf("%w: unrecognised scheme", driven.ErrUnsupportedEndpoint)
	}
}

// Close releases pooled connections held by the adapters.
func (d *Dialer) Close() error {
	return errors.Join(d.postgres.Close(), d.sqlite.Close())
}
