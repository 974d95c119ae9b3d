package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StoreDialer = (*Dialer)(nil)

// dialTimeout bounds pool creation and the first ping.
const dialTimeout = 10 * time.Second

// Dialer opens pgx pools for "postgres://" endpoints. Pools are keyed by
// endpoint and token so a rotated token opens a fresh pool.
type Dialer struct {
	mu     sync.Mutex
	pools  map[string]*pgxpool.Pool
	table  string
	logger *slog.Logger
}

// NewDialer creates a Dialer whose repos write to table.
func NewDialer(table string, logger *slog.Logger) *Dialer {
	return &Dialer{
		pools:  make(map[string]*pgxpool.Pool),
		table:  table,
		logger: logger,
	}
}

// IsEndpoint reports whether endpoint names a PostgreSQL server.
func IsEndpoint(endpoint string) bool {
	return strings.HasPrefix(endpoint, "postgres://") || strings.HasPrefix(endpoint, "postgresql://")
}

// Dial returns a CredentialRepo on a pool authenticated with token as password.
func (d *Dialer) Dial(ctx context.Context, endpoint, token string) (driven.CredentialStore, error) {
	if endpoint == "" || token == "" {
		return nil, driven.ErrStoreNotConfigured
	}
	if !IsEndpoint(endpoint) {
		return nil, fmt.Errorf("%w: not a postgres endpoint", driven.ErrUnsupportedEndpoint)
	}

	key := endpoint + "\x00" + token

	d.mu.Lock()
	pool, ok := d.pools[key]
	d.mu.Unlock()
	if ok {
		return NewCredentialRepo(pool, d.table), nil
	}

	// Connect without holding the lock so a slow server does not queue
	// every other request behind this one.
	pool, err := d.connect(ctx, endpoint, token)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.pools[key]; ok {
		pool.Close()
		return NewCredentialRepo(existing, d.table), nil
	}
	d.pools[key] = pool
	return NewCredentialRepo(pool, d.table), nil
}

func (d *Dialer) connect(ctx context.Context, endpoint, token string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres endpoint: %w", driven.ErrUnsupportedEndpoint, err)
	}
	cfg.ConnConfig.Password = token
	cfg.MaxConns = 10
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	d.logger.Info("postgres credential store connected",
		"database", cfg.ConnConfig.Database,
		"user", cfg.ConnConfig.User,
	)
	return pool, nil
}

// Close closes every pool opened by the dialer.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, pool := range d.pools {
		pool.Close()
		delete(d.pools, key)
	}
	return nil
}
