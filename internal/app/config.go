package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/changekit/internal/changetip"
	"github.com/florianilch/changekit/internal/observability"
	"github.com/florianilch/changekit/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for stored credentials.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
	TokenStorageTypeSQLite  TokenStorageType = "sqlite"
)

// keyringService names the keyring items holding the credentials.
const keyringService = "changekit"

// Default configuration values
const (
	DefaultConfigLogFormat               = LogFormatText
	DefaultConfigAPIBaseURL              = changetip.DefaultBaseURL
	DefaultConfigAPITimeout              = changetip.DefaultTimeout
	DefaultConfigOAuthRedirectURI        = "http://127.0.0.1:4180/callback"
	DefaultConfigAuthStorage             = TokenStorageTypeFile
	DefaultConfigAuthEnvAccessKey        = "CHANGETIP_ACCESS_TOKEN"
	DefaultConfigCallbackTimeout         = 5 * time.Minute
	DefaultConfigCallbackShutdownTimeout = 5 * time.Second
)

// APIConfig holds ChangeTip API configuration.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	// Timeout bounds every API and token endpoint request.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
}

// OAuthConfig identifies the OAuth2 client registered with ChangeTip.
type OAuthConfig struct {
	ClientID     string   `json:"client_id" validate:"required"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
	RedirectURI  string   `json:"redirect_uri" validate:"required,uri"`
}

// AuthConfig describes where credentials are persisted.
type AuthConfig struct {
	// Storage configuration - where the credentials live
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring sqlite"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File          string `json:"file,omitempty"`            // For file storage: path to credentials file
	EnvAccessKey  string `json:"env_access_key,omitempty"`  // For env storage: access token variable
	EnvRefreshKey string `json:"env_refresh_key,omitempty"` // For env storage: optional refresh token variable
	KeyringUser   string `json:"keyring_user,omitempty"`    // For keyring storage: user identifier
	SQLitePath    string `json:"sqlite_path,omitempty"`     // For sqlite storage: database file
}

// NewTokenStore creates a TokenStore from the authentication configuration.
// The returned close function releases backend resources and is never nil.
func (a *AuthConfig) NewTokenStore(ctx context.Context) (tokenstore.TokenStore, func() error, error) {
	noop := func() error { return nil }

	switch a.Storage {
	case TokenStorageTypeFile:
		store, err := tokenstore.NewFileStore(a.File)
		return store, noop, err
	case TokenStorageTypeEnv:
		store, err := tokenstore.NewEnvStore(a.EnvAccessKey, a.EnvRefreshKey)
		return store, noop, err
	case TokenStorageTypeKeyring:
		store, err := tokenstore.NewKeyringStore(keyringService, a.KeyringUser)
		return store, noop, err
	case TokenStorageTypeSQLite:
		store, err := tokenstore.OpenSQLiteStore(ctx, a.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage type: %s", a.Storage)
	}
}

// CallbackConfig controls the loopback listener used by login.
type CallbackConfig struct {
	// Timeout bounds how long login waits for the browser redirect.
	Timeout time.Duration `json:"timeout" validate:"gt=0"`
	// ShutdownTimeout for gracefully stopping the listener.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" validate:"gt=0"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level     `json:"log_level"`
	LogFormat   LogFormat      `json:"log_format" validate:"oneof=text json"`
	LogExporter string         `json:"log_exporter" validate:"omitempty,oneof=stdout otlphttp otlpgrpc"`
	API         APIConfig      `json:"api"`
	OAuth       OAuthConfig    `json:"oauth"`
	Auth        AuthConfig     `json:"auth"`
	Callback    CallbackConfig `json:"callback"`
}

// ObservabilityOptions returns the logging pipeline described by the configuration.
func (c *Config) ObservabilityOptions() observability.Options {
	return observability.Options{
		Level:    c.LogLevel,
		Format:   string(c.LogFormat),
		Exporter: c.LogExporter,
	}
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.OAuth.RedirectURI == "" {
		c.OAuth.RedirectURI = DefaultConfigOAuthRedirectURI
	}
	if c.Auth.Storage == "" {
		c.Auth.Storage = DefaultConfigAuthStorage
	}
	if c.Callback.Timeout == 0 {
		c.Callback.Timeout = DefaultConfigCallbackTimeout
	}
	if c.Callback.ShutdownTimeout == 0 {
		c.Callback.ShutdownTimeout = DefaultConfigCallbackShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.file required (auto-detect failed: %w)", err)
			}
			c.Auth.File = filepath.Join(configDir, "changekit", "credentials.json")
		}
	case TokenStorageTypeSQLite:
		if c.Auth.SQLitePath == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("auth.sqlite_path required (auto-detect failed: %w)", err)
			}
			c.Auth.SQLitePath = filepath.Join(configDir, "changekit", "credentials.sqlite")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("auth.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Auth.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvAccessKey == "" {
			c.Auth.EnvAccessKey = DefaultConfigAuthEnvAccessKey
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Auth.Storage {
	case TokenStorageTypeFile:
		if c.Auth.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Auth.EnvAccessKey == "" {
			return errors.New("env_access_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Auth.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case TokenStorageTypeSQLite:
		if c.Auth.SQLitePath == "" {
			return errors.New("sqlite_path required for sqlite storage")
		}
	}

	return nil
}
