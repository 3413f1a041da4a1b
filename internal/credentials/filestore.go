package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
)

// FileStore is the plain-platform implementation: a 0600 JSON file under
// a private directory, keyed by service then profile. No user gesture is
// ever required.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore stores entries in a single file at path, creating parent
// directories as needed on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileEntries map[string]map[string][]byte

func (f *FileStore) read() (fileEntries, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return fileEntries{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuthMissingCredentials, "failed to read credential file", err).
			WithComponent("credentials")
	}

	var entries fileEntries
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuthMissingCredentials, "credential file is corrupt", err).
			WithComponent("credentials")
	}
	return entries, nil
}

// Save implements types.CredentialStore.
func (f *FileStore) Save(_ context.Context, service, profile string, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	if entries[service] == nil {
		entries[service] = make(map[string][]byte)
	}
	entries[service][profile] = blob

	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAuthMissingCredentials, "failed to encode credential file", err).
			WithComponent("credentials")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return errors.Wrap(errors.ErrCodeAuthMissingCredentials, "failed to create credential directory", err).
			WithComponent("credentials")
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeAuthMissingCredentials, "failed to write credential file", err).
			WithComponent("credentials")
	}
	return nil
}

// Load implements types.CredentialStore.
func (f *FileStore) Load(_ context.Context, service, profile string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	blob, ok := entries[service][profile]
	if !ok {
		return nil, errors.New(errors.ErrCodeAuthMissingCredentials, "no credentials stored for profile").
			WithComponent("credentials").
			WithContext("service", service).WithContext("profile", profile)
	}
	return blob, nil
}
