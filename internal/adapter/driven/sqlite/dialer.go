package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StoreDialer = (*Dialer)(nil)

// Dialer opens SQLite databases named by "sqlite://<path>" or "file:<path>"
// endpoints. Each path is opened and migrated once, then shared by later dials.
type Dialer struct {
	mu     sync.Mutex
	dbs    map[string]*DB
	table  string
	logger *slog.Logger
}

// NewDialer creates a Dialer with no open databases. The schema is fixed by
// the embedded migrations, so Dial rejects any table other than TableName.
func NewDialer(table string, logger *slog.Logger) *Dialer {
	return &Dialer{
		dbs:    make(map[string]*DB),
		table:  table,
		logger: logger,
	}
}

// Dial returns a CredentialRepo for the database named by endpoint. The token
// must be non-empty even though SQLite has no notion of a privileged role.
func (d *Dialer) Dial(ctx context.Context, endpoint, token string) (driven.CredentialStore, error) {
	if endpoint == "" || token == "" {
		return nil, driven.ErrStoreNotConfigured
	}

	path, ok := PathFromEndpoint(endpoint)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a sqlite endpoint", driven.ErrUnsupportedEndpoint, endpoint)
	}
	if d.table != TableName {
		return nil, fmt.Errorf("%w: sqlite stores use table %q, not %q", driven.ErrUnsupportedEndpoint, TableName, d.table)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if db, ok := d.dbs[path]; ok {
		return NewCredentialRepo(db), nil
	}

	db, err := NewDB(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	version, err := RunMigrations(db.Writer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	d.logger.Info("sqlite credential store opened", "path", db.Path(), "schema_version", version)

	d.dbs[path] = db
	return NewCredentialRepo(db), nil
}

// Close closes every database opened by the dialer.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for path, db := range d.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close sqlite store %q: %w", path, err)
		}
		delete(d.dbs, path)
	}
	return firstErr
}

// PathFromEndpoint extracts the database path from a "sqlite://" or "file:"
// endpoint. Reports false for any other scheme or an empty path.
func PathFromEndpoint(endpoint string) (string, bool) {
	var path string
	switch {
	case strings.HasPrefix(endpoint, "sqlite://"):
		path = strings.TrimPrefix(endpoint, "sqlite://")
	case strings.HasPrefix(endpoint, "file:"):
		path = strings.TrimPrefix(endpoint, "file:")
	default:
		return "", false
	}
	return path, path != ""
}
