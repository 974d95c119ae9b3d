// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Validation and configuration failures surfaced by CredentialService.
var (
	ErrInvalidAPIKey = errors.New("invalid or missing api key")
	ErrInvalidUserID = errors.New("invalid or missing user id")
	ErrConfiguration = errors.New("credential store configuration error")
)

const redacted = "[REDACTED]"

// StorageError reports a failure of the backing store. Details carries the
// store's diagnostic with every secret scrubbed and is safe to return to callers.
type StorageError struct {
	Details string
	Err     error
}

func (e *StorageError) Error() string {
	return "store credential: " + e.Details
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// StoreSettings holds the deployment secrets needed to reach the backing
// store. Either field may be empty; the service reports ErrConfiguration
// per request instead of refusing to start.
type StoreSettings struct {
	Endpoint string
	Token    string
}

// Configured reports whether both the endpoint and the privileged token are set.
func (s StoreSettings) Configured() bool {
	return s.Endpoint != "" && s.Token != ""
}

// CredentialService validates and persists user API credentials. It holds no
// mutable state and is safe for concurrent use.
type CredentialService struct {
	dialer   driven.StoreDialer
	settings StoreSettings
	logger   *slog.Logger
}

// NewCredentialService creates a CredentialService that dials the store
// described by settings on every call to Store.
func NewCredentialService(dialer driven.StoreDialer, settings StoreSettings, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		dialer:   dialer,
		settings: settings,
		logger:   logger,
	}
}

// Validate checks apiKey, then userID. The first failing field decides the error.
func Validate(apiKey, userID string) error {
	if apiKey == "" || !strings.HasPrefix(apiKey, model.APIKeyPrefix) {
		return ErrInvalidAPIKey
	}
	if userID == "" {
		return ErrInvalidUserID
	}
	return nil
}

// Store validates the credential and upserts it keyed by userID. Validation
// failures never reach the store. Store failures are returned as *StorageError.
func (s *CredentialService) Store(ctx context.Context, userID, apiKey string) (model.Confirmation, error) {
	if err := Validate(apiKey, userID); err != nil {
		return model.Confirmation{}, err
	}

	if !s.settings.Configured() {
		s.logger.Error("credential store settings missing",
			"endpoint_set", s.settings.Endpoint != "",
			"token_set", s.settings.Token != "",
		)
		return model.Confirmation{}, ErrConfiguration
	}

	store, err := s.dialer.Dial(ctx, s.settings.Endpoint, s.settings.Token)
	if err != nil {
		if errors.Is(err, driven.ErrStoreNotConfigured) || errors.Is(err, driven.ErrUnsupportedEndpoint) {
			s.logger.Error("credential store rejected settings", "error", s.scrub(err.Error(), apiKey))
			return model.Confirmation{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		details := s.scrub(err.Error(), apiKey)
		s.logger.Error("credential store dial failed", "user_id", userID, "error", details)
		return model.Confirmation{}, &StorageError{Details: details, Err: err}
	}

	conf, err := store.Upsert(ctx, model.CredentialRecord{UserID: userID, APIKey: apiKey})
	if err != nil {
		details := s.scrub(err.Error(), apiKey)
		s.logger.Error("credential upsert failed", "user_id", userID, "error", details)
		return model.Confirmation{}, &StorageError{Details: details, Err: err}
	}

	s.logger.Info("credential stored",
		"user_id", conf.UserID,
		"api_key_hint", model.MaskAPIKey(apiKey),
		"updated_at", conf.UpdatedAt,
	)
	return conf, nil
}

// scrub removes the caller's api key, the privileged token and the store
// endpoint (whole, then its host) from msg.
func (s *CredentialService) scrub(msg, apiKey string) string {
	secrets := []string{apiKey, s.settings.Token, s.settings.Endpoint}
	if u, err := url.Parse(s.settings.Endpoint); err == nil && u.Host != "" {
		secrets = append(secrets, u.Host, u.Hostname())
	}
	for _, secret := range secrets {
		if secret != "" {
			msg = strings.ReplaceAll(msg, secret, redacted)
		}
	}
	return msg
}
