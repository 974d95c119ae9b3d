package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
)

// ErrStoreNotConfigured is returned by a StoreDialer when the endpoint or the
// privileged token is empty.
var ErrStoreNotConfigured = errors.New("credential store not configured: set SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")

// ErrUnsupportedEndpoint is returned by a StoreDialer that does not recognise
// the endpoint scheme.
var ErrUnsupportedEndpoint = errors.New("unsupported credential store endpoint")

// CredentialStore defines the driven port for credential persistence.
type CredentialStore interface {
	// Upsert inserts rec, or overwrites the api key of the existing record with
	// the same user id. The store assigns CreatedAt on insert and refreshes
	// UpdatedAt on every write. The whole write is a single atomic operation.
	Upsert(ctx context.Context, rec model.CredentialRecord) (model.Confirmation, error)
}

// StoreDialer opens a privileged, server-side connection to the backing
// store. The connection never persists or refreshes an end-user session.
type StoreDialer interface {
	Dial(ctx context.Context, endpoint, token string) (CredentialStore, error)
}
