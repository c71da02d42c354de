// Package tokenstore provides persistent storage for OAuth credential pairs.
//
// Supports four storage backends with different security and deployment tradeoffs:
//   - File: JSON document on the local filesystem with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - SQLite: a local database file, shared with other tools that read the same keys
//   - Env: Read-only environment variable access (requires external secret management)
//
// Every writable backend replaces the access/refresh pair as a unit, so a reader
// never observes an access token from one grant next to a refresh token from another.
// Authorization and refresh require writable storage (file, keyring or sqlite).
package tokenstore
