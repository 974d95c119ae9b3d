package postgres

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// --- Fakes ---

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeQuerier struct {
	row   fakeRow
	query string
	args  []any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.query = sql
	q.args = args
	return q.row
}

// --- Tests ---

func TestCredentialRepo_Upsert(t *testing.T) {
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	updated := created.Add(time.Hour)
	q := &fakeQuerier{row: fakeRow{values: []any{"u1", created, updated}}}
	repo := NewCredentialRepo(q, "user_api_keys")

	conf, err := repo.Upsert(context.Background(), model.CredentialRecord{UserID: "u1", APIKey: "sk-test"})

	require.NoError(t, err)
	assert.Equal(t, "u1", conf.UserID)
	assert.Equal(t, created.UTC(), conf.CreatedAt)
	assert.Equal(t, time.UTC, conf.UpdatedAt.Location())
	assert.Contains(t, q.query, `INSERT INTO "user_api_keys"`)
	assert.Contains(t, q.query, "ON CONFLICT (user_id) DO UPDATE")
	assert.Contains(t, q.query, "RETURNING user_id::text, created_at, updated_at")
	assert.Equal(t, []any{"u1", "sk-test"}, q.args)
}

func TestCredentialRepo_UpsertQuotesTableName(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: errors.New("boom")}}
	repo := NewCredentialRepo(q, `keys"; DROP TABLE users; --`)

	_, err := repo.Upsert(context.Background(), model.CredentialRecord{UserID: "u1", APIKey: "sk-test"})

	require.Error(t, err)
	assert.Contains(t, q.query, `"keys""; DROP TABLE users; --"`)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "user_api_keys_pkey"},
			want: "conflict while storing the key",
		},
		{
			name: "value too long",
			err:  &pgconn.PgError{Code: "22001"},
			want: "too long",
		},
		{
			name: "invalid uuid",
			err:  &pgconn.PgError{Code: "22P02"},
			want: "user id is not valid",
		},
		{
			name: "other postgres error",
			err:  &pgconn.PgError{Code: "57014", Message: "canceling statement"},
			want: "upsert credential (57014)",
		},
		{
			name: "non postgres error",
			err:  errors.New("conn closed"),
			want: "upsert credential: conn closed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := describe(tc.err)
			assert.Contains(t, got.Error(), tc.want)
			assert.ErrorIs(t, got, tc.err)
		})
	}
}

func TestDialer_RejectsBadSettings(t *testing.T) {
	d := NewDialer("user_api_keys", slog.Default())
	ctx := context.Background()

	_, err := d.Dial(ctx, "", "token")
	assert.ErrorIs(t, err, driven.ErrStoreNotConfigured)

	_, err = d.Dial(ctx, "https://project.supabase.co", "token")
	assert.ErrorIs(t, err, driven.ErrUnsupportedEndpoint)
}

func TestIsEndpoint(t *testing.T) {
	assert.True(t, IsEndpoint("postgres://db.local:5432/app"))
	assert.True(t, IsEndpoint("postgresql://db.local/app"))
	assert.False(t, IsEndpoint("https://project.supabase.co"))
	assert.False(t, IsEndpoint("sqlite://keys.db"))
}

// hangingListener accepts connections and never answers, like a stalled server.
func hangingListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestDialer_ConcurrentDialsDoNotQueue(t *testing.T) {
	endpoint := "postgres://app@" + hangingListener(t) + "/app?sslmode=disable"
	d := NewDialer("user_api_keys", slog.Default())
	t.Cleanup(func() { _ = d.Close() })

	const dialers = 3
	const timeout = 300 * time.Millisecond

	var wg sync.WaitGroup
	errs := make([]error, dialers)
	start := time.Now()
	for i := range dialers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			_, errs[i] = d.Dial(ctx, endpoint, "token")
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	for _, err := range errs {
		assert.Error(t, err)
	}
	assert.Less(t, elapsed, 2*timeout, "dials should time out in parallel")
}
