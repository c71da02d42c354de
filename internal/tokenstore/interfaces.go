package tokenstore

import (
	"context"
	"errors"
)

// Fixed names under which the two secrets are persisted.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

var (
	// ErrNotFound is returned by Read when no credentials are stored.
	ErrNotFound = errors.New("no credentials stored")

	// ErrReadOnly is returned by Write and Clear on read-only backends.
	ErrReadOnly = errors.New("token storage is read-only")
)

// Credentials is the token pair obtained from the provider.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenStore reads and writes credentials to persistent storage.
//
// Authorization and refresh require writable storage.
type TokenStore interface {
	// Read returns the stored credentials. Returns ErrNotFound if nothing is stored.
	Read(ctx context.Context) (Credentials, error)

	// Write persists both tokens, replacing any existing pair. Returns ErrReadOnly
	// if the storage backend is read-only.
	Write(ctx context.Context, creds Credentials) error

	// Clear removes stored credentials. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
