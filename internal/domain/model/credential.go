package model

import "time"

// APIKeyPrefix is the literal every stored API credential must start with.
const APIKeyPrefix = "sk-"

// CredentialRecord is a user's personal API credential. UserID is the unique
// key; at most one record exists per user. CreatedAt and UpdatedAt are
// assigned by the backing store and ignored on write.
type CredentialRecord struct {
	UserID    string
	APIKey    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Confirmation is the non-secret view of a CredentialRecord returned after a
// successful upsert. It never carries the API key.
type Confirmation struct {
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MaskAPIKey returns a display hint such as "sk-abc...wxyz" for key.
// Returns "" when key is too short or lacks APIKeyPrefix.
func MaskAPIKey(key string) string {
	if len(key) < 10 || key[:len(APIKeyPrefix)] != APIKeyPrefix {
		return ""
	}
	return key[:6] + "..." + key[len(key)-4:]
}
