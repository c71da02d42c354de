package tokenstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore provides read-only access to credentials stored in environment variables.
// Suitable for API calls with an externally managed token, but not for authorization
// or refresh (requires writable storage).
type EnvStore struct {
	accessKey  string
	refreshKey string
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading the access token from accessKey and,
// if refreshKey is non-empty, the refresh token from refreshKey.
func NewEnvStore(accessKey, refreshKey string) (*EnvStore, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		accessKey:  accessKey,
		refreshKey: refreshKey,
	}, nil
}

// Read returns credentials from the environment. Returns ErrNotFound if the access
// token variable is unset or empty.
func (e *EnvStore) Read(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	access := os.Getenv(e.accessKey)
	if access == "" {
		return Credentials{}, fmt.Errorf("environment variable %s is empty: %w", e.accessKey, ErrNotFound)
	}

	creds := Credentials{AccessToken: access}
	if e.refreshKey != "" {
		creds.RefreshToken = os.Getenv(e.refreshKey)
	}
	return creds, nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, _ Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable storage: %w", ErrReadOnly)
}

// Clear is not supported for environment variables (they are read-only).
func (e *EnvStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("environment variable storage: %w", ErrReadOnly)
}
