// Package credentials models the external keychain capability as one
// platform-agnostic save/load pair over opaque blobs: platforms with a
// biometric keychain may block Load on a user gesture, plain platforms do
// a key/value lookup, and the engine never branches on which one it got.
package credentials

import (
	"context"
	"encoding/json"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
	"github.com/civictech-tv/reelvault-core/pkg/types"
)

// ServiceName is the fixed service identifier ReelVault registers its
// credentials under.
const ServiceName = "ReelVault-AWS"

// Credentials is the record the store returns for a (service, profile)
// pair.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Region          string `json:"region"`
	SessionToken    string `json:"session_token,omitempty"`
}

// Valid reports whether the record carries the minimum usable fields.
func (c Credentials) Valid() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// Manager wraps a raw blob store with the JSON encoding of Credentials.
// Components hold a Manager; only this package touches the blob format.
type Manager struct {
	store types.CredentialStore
}

// NewManager constructs a Manager over any blob store implementation.
func NewManager(store types.CredentialStore) *Manager {
	return &Manager{store: store}
}

// Save serializes creds and stores them under (ServiceName, profile).
func (m *Manager) Save(ctx context.Context, profile string, creds Credentials) error {
	blob, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAuthMissingCredentials, "failed to encode credentials", err).
			WithComponent("credentials").WithOperation("Save")
	}
	return m.store.Save(ctx, ServiceName, profile, blob)
}

// Load fetches and decodes the credentials for profile. A store-level
// authentication error (missing entry, biometric gesture cancelled)
// passes through unchanged; it is never retried here.
func (m *Manager) Load(ctx context.Context, profile string) (Credentials, error) {
	blob, err := m.store.Load(ctx, ServiceName, profile)
	if err != nil {
		return Credentials{}, err
	}

	var creds Credentials
	if err := json.Unmarshal(blob, &creds); err != nil {
		return Credentials{}, errors.Wrap(errors.ErrCodeAuthMissingCredentials, "stored credentials are malformed", err).
			WithComponent("credentials").WithOperation("Load")
	}
	if !creds.Valid() {
		return Credentials{}, errors.New(errors.ErrCodeAuthMissingCredentials, "stored credentials are incomplete").
			WithComponent("credentials").WithOperation("Load").WithContext("profile", profile)
	}
	return creds, nil
}

// Available reports whether a usable credential record exists for
// profile, feeding the upload-readiness gate.
func (m *Manager) Available(ctx context.Context, profile string) bool {
	_, err := m.Load(ctx, profile)
	return err == nil
}
