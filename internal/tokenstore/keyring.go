package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
//
// The two tokens are separate keyring items named service/accessToken and
// service/refreshToken. The keyring cannot update both atomically, so an in-process
// lock keeps readers from seeing a half-written pair, and a failed Write restores
// the previous access token.
type KeyringStore struct {
	service string
	user    string
	backend keyringBackend

	mu sync.RWMutex
}

// keyringBackend is the subset of the go-keyring API used by KeyringStore.
type keyringBackend interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

// systemKeyring forwards to the OS keyring (or the go-keyring mock in tests).
type systemKeyring struct{}

func (systemKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

func (systemKeyring) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

func (systemKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
		backend: systemKeyring{},
	}, nil
}

func (k *KeyringStore) item(name string) string {
	return k.service + "/" + name
}

// Read returns the credentials from the system keyring. Returns ErrNotFound if the
// access token item is missing or empty.
func (k *KeyringStore) Read(ctx context.Context) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	access, err := k.backend.Get(k.item(AccessTokenKey), k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, err
	}
	if access == "" {
		return Credentials{}, ErrNotFound
	}

	refresh, err := k.backend.Get(k.item(RefreshTokenKey), k.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return Credentials{}, err
	}

	return Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// Write persists both tokens to the system keyring, overwriting any existing values.
// An empty refresh token removes the stored one. If the refresh token cannot be
// updated, the previous access token is put back so the stored pair stays intact.
func (k *KeyringStore) Write(ctx context.Context, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	previous, err := k.backend.Get(k.item(AccessTokenKey), k.user)
	hadPrevious := err == nil
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("reading %s: %w", AccessTokenKey, err)
	}

	if err := k.backend.Set(k.item(AccessTokenKey), k.user, creds.AccessToken); err != nil {
		return fmt.Errorf("storing %s: %w", AccessTokenKey, err)
	}

	if err := k.writeRefreshToken(creds.RefreshToken); err != nil {
		var rollback error
		if hadPrevious {
			rollback = k.backend.Set(k.item(AccessTokenKey), k.user, previous)
		} else {
			rollback = k.backend.Delete(k.item(AccessTokenKey), k.user)
		}
		if rollback != nil {
			return errors.Join(err, fmt.Errorf("restoring %s: %w", AccessTokenKey, rollback))
		}
		return err
	}
	return nil
}

func (k *KeyringStore) writeRefreshToken(token string) error {
	if token == "" {
		if err := k.backend.Delete(k.item(RefreshTokenKey), k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("removing %s: %w", RefreshTokenKey, err)
		}
		return nil
	}
	if err := k.backend.Set(k.item(RefreshTokenKey), k.user, token); err != nil {
		return fmt.Errorf("storing %s: %w", RefreshTokenKey, err)
	}
	return nil
}

// Clear deletes both keyring items.
func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	for _, name := range []string{AccessTokenKey, RefreshTokenKey} {
		if err := k.backend.Delete(k.item(name), k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			errs = append(errs, fmt.Errorf("removing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
