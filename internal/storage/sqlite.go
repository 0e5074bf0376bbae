package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/readtrack/profilesync/internal/crypto"
	"github.com/readtrack/profilesync/internal/log"

	// registers the pure-Go "sqlite" driver with database/sql
	_ "modernc.org/sqlite"
)

var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage persists credentials and snapshots in a local SQLite file.
// It is the natural backend for the CLI: one file next to the config, no
// server. Use ":memory:" in tests.
//
// Credentials are encrypted when an encryptor is configured. Rows remember
// whether they were encrypted so a missing key is reported instead of
// handing ciphertext to the backend as a bearer token.
type SQLiteStorage struct {
	conn      *sql.DB
	encryptor crypto.Encryptor
}

// NewSQLiteStorage opens (creating if needed) the database at path and runs
// migrations. encryptor may be nil.
func NewSQLiteStorage(ctx context.Context, path string, encryptor crypto.Encryptor) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// one connection: SQLite has a single writer, and every new
	// connection to ":memory:" would otherwise see an empty database
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	s := &SQLiteStorage{conn: conn, encryptor: encryptor}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	if encryptor == nil {
		log.LogWarnWithFields("storage", "SQLite storage has no encryption key, credentials are stored in plain text", map[string]any{
			"path": path,
		})
	}
	return s, nil
}

func (s *SQLiteStorage) migrate(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credentials (
			account    TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			encrypted  INTEGER NOT NULL DEFAULT 0,
			source     TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating credentials table: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS profile_snapshots (
			account      TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			bio          TEXT NOT NULL DEFAULT '',
			confirmed_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating profile_snapshots table: %w", err)
	}
	return nil
}

// GetCredential reads and, if needed, decrypts the stored credential
func (s *SQLiteStorage) GetCredential(ctx context.Context, account string) (*Credential, error) {
	var (
		token     string
		encrypted bool
		source    string
		updatedAt int64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT token, encrypted, source, updated_at FROM credentials WHERE account = ?`, account,
	).Scan(&token, &encrypted, &source, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading credential for %s: %w", account, err)
	}

	if encrypted {
		if s.encryptor == nil {
			return nil, fmt.Errorf("sqlite: credential for %s is encrypted but no encryption key is configured", account)
		}
		token, err = s.encryptor.Decrypt(token)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decrypting credential for %s: %w", account, err)
		}
	}

	return &Credential{
		Account:   account,
		Token:     token,
		Source:    source,
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
	}, nil
}

func (s *SQLiteStorage) SetCredential(ctx context.Context, cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential cannot be nil")
	}

	token := cred.Token
	encrypted := false
	if s.encryptor != nil {
		var err error
		token, err = s.encryptor.Encrypt(cred.Token)
		if err != nil {
			return fmt.Errorf("sqlite: encrypting credential: %w", err)
		}
		encrypted = true
	}

	updatedAt := cred.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO credentials (account, token, encrypted, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			token = excluded.token,
			encrypted = excluded.encrypted,
			source = excluded.source,
			updated_at = excluded.updated_at`,
		cred.Account, token, encrypted, cred.Source, updatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing credential for %s: %w", cred.Account, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteCredential(ctx context.Context, account string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM credentials WHERE account = ?`, account); err != nil {
		return fmt.Errorf("sqlite: deleting credential for %s: %w", account, err)
	}
	return nil
}

func (s *SQLiteStorage) GetSnapshot(ctx context.Context, account string) (*ProfileSnapshot, error) {
	snap := &ProfileSnapshot{Account: account}
	var confirmedAt int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT display_name, bio, confirmed_at FROM profile_snapshots WHERE account = ?`, account,
	).Scan(&snap.DisplayName, &snap.Bio, &confirmedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading snapshot for %s: %w", account, err)
	}
	snap.ConfirmedAt = time.Unix(0, confirmedAt).UTC()
	return snap, nil
}

func (s *SQLiteStorage) PutSnapshot(ctx context.Context, snap *ProfileSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	confirmedAt := snap.ConfirmedAt
	if confirmedAt.IsZero() {
		confirmedAt = time.Now()
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO profile_snapshots (account, display_name, bio, confirmed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			display_name = excluded.display_name,
			bio = excluded.bio,
			confirmed_at = excluded.confirmed_at`,
		snap.Account, snap.DisplayName, snap.Bio, confirmedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing snapshot for %s: %w", snap.Account, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteSnapshot(ctx context.Context, account string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM profile_snapshots WHERE account = ?`, account); err != nil {
		return fmt.Errorf("sqlite: deleting snapshot for %s: %w", account, err)
	}
	return nil
}

// Close closes the database connection pool
func (s *SQLiteStorage) Close() error {
	return s.conn.Close()
}
