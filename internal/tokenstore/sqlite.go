package tokenstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_init.sql
var initDDL string

// SQLiteStore keeps credentials in a local SQLite database, one row per secret
// name. Both rows are replaced inside a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check to ensure SQLiteStore implements TokenStore
var _ TokenStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (and creates if necessary) the database file at path and
// applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, initDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Read returns the stored credentials. Returns ErrNotFound if no access token row exists.
func (s *SQLiteStore) Read(ctx context.Context) (Credentials, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM credentials WHERE name IN (?, ?)`,
		AccessTokenKey, RefreshTokenKey)
	if err != nil {
		return Credentials{}, err
	}
	defer func() { _ = rows.Close() }()

	var creds Credentials
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Credentials{}, err
		}
		switch name {
		case AccessTokenKey:
			creds.AccessToken = value
		case RefreshTokenKey:
			creds.RefreshToken = value
		}
	}
	if err := rows.Err(); err != nil {
		return Credentials{}, err
	}

	if creds.AccessToken == "" {
		return Credentials{}, ErrNotFound
	}
	return creds, nil
}

// Write replaces both rows in one transaction. An empty refresh token removes the
// stored one.
func (s *SQLiteStore) Write(ctx context.Context, creds Credentials) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const upsert = `INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	if _, err = tx.ExecContext(ctx, upsert, AccessTokenKey, creds.AccessToken); err != nil {
		return fmt.Errorf("storing %s: %w", AccessTokenKey, err)
	}
	if creds.RefreshToken == "" {
		_, err = tx.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, RefreshTokenKey)
	} else {
		_, err = tx.ExecContext(ctx, upsert, RefreshTokenKey, creds.RefreshToken)
	}
	if err != nil {
		return fmt.Errorf("storing %s: %w", RefreshTokenKey, err)
	}

	return tx.Commit()
}

// Clear deletes both rows.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE name IN (?, ?)`,
		AccessTokenKey, RefreshTokenKey)
	return err
}
