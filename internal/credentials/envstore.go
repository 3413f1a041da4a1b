package credentials

import (
	"context"
	"encoding/json"
	"os"

	"github.com/civictech-tv/reelvault-core/pkg/errors"
)

// EnvStore is a read-only store backed by the standard AWS environment
// variables. It ignores the profile: the environment holds at most one
// identity. Save is rejected — the process does not own its environment.
type EnvStore struct{}

// Save implements types.CredentialStore and always fails.
func (EnvStore) Save(context.Context, string, string, []byte) error {
	return errors.New(errors.ErrCodeAuthNoAccess, "environment credential store is read-only").
		WithComponent("credentials")
}

// Load implements types.CredentialStore by assembling a credential blob
// from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_REGION /
// AWS_SESSION_TOKEN.
func (EnvStore) Load(context.Context, string, string) ([]byte, error) {
	creds := Credentials{
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Region:          os.Getenv("AWS_REGION"),
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
	}
	if !creds.Valid() {
		return nil, errors.New(errors.ErrCodeAuthMissingCredentials, "AWS credentials not present in environment").
			WithComponent("credentials")
	}
	return json.Marshal(creds)
}
