// SPDX-License-Identifier: MPL-2.0

package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	_ "modernc.org/sqlite"

	"github.com/invowk/modrt/pkg/module"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

type (
	// SQLite stores module content in a SQLite database. Blobs are stored once
	// per SHA-256 digest and referenced from a (location, path) index.
	SQLite struct {
		db *sql.DB
	}

	sqliteRoot struct {
		db       *sql.DB
		location string
	}
)

// OpenSQLite opens (creating if needed) the store at dsn. Use ":memory:" for
// a private in-memory store.
func OpenSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS blobs (
			digest TEXT PRIMARY KEY,
			data   BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS entries (
			location TEXT NOT NULL,
			path     TEXT NOT NULL,
			digest   TEXT NOT NULL REFERENCES blobs(digest),
			PRIMARY KEY (location, path)
		);

		CREATE INDEX IF NOT EXISTS idx_entries_digest ON entries(digest);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Put stores data under (location, path) and returns its digest. Identical
// content is stored once.
func (s *SQLite) Put(ctx context.Context, location, path string, data []byte) (string, error) {
	var digest string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		digest, err = putEntry(ctx, tx, location, path, data)
		return err
	})
	if err != nil {
		return "", err
	}
	return digest, nil
}

// Import copies every regular file below dir of src into location, keyed by
// its slash-separated path relative to dir. Nothing is stored unless every
// file is.
func (s *SQLite) Import(ctx context.Context, location string, src afero.Fs, dir string) (int, error) {
	var count int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		count, err = importTree(ctx, tx, location, src, dir)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Replace swaps the content of location for the files below dir of src in
// one transaction. On error the previous content is left untouched.
func (s *SQLite) Replace(ctx context.Context, location string, src afero.Fs, dir string) (int, error) {
	var count int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE location = ?`, location); err != nil {
			return fmt.Errorf("storage: delete entries: %w", err)
		}
		var err error
		if count, err = importTree(ctx, tx, location, src, dir); err != nil {
			return err
		}
		return collectBlobs(ctx, tx)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Delete removes every entry of location and the blobs no longer referenced.
func (s *SQLite) Delete(ctx context.Context, location string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE location = ?`, location); err != nil {
			return fmt.Errorf("storage: delete entries: %w", err)
		}
		return collectBlobs(ctx, tx)
	})
}

// inTx runs fn in a transaction committed only when fn succeeds.
func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func putEntry(ctx context.Context, tx *sql.Tx, location, path string, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO blobs (digest, data) VALUES (?, ?)`, digest, data); err != nil {
		return "", fmt.Errorf("storage: put blob: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (location, path, digest) VALUES (?, ?, ?)
		 ON CONFLICT (location, path) DO UPDATE SET digest = excluded.digest`,
		location, path, digest,
	); err != nil {
		return "", fmt.Errorf("storage: put entry: %w", err)
	}
	return digest, nil
}

func importTree(ctx context.Context, tx *sql.Tx, location string, src afero.Fs, dir string) (int, error) {
	count := 0
	err := afero.Walk(src, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(src, p)
		if err != nil {
			return err
		}
		if _, err := putEntry(ctx, tx, location, filepath.ToSlash(rel), data); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: import %s: %w", dir, err)
	}
	return count, nil
}

func collectBlobs(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM blobs WHERE digest NOT IN (SELECT digest FROM entries)`); err != nil {
		return fmt.Errorf("storage: delete blobs: %w", err)
	}
	return nil
}

// Root implements module.Storage. The location must hold at least one entry.
func (s *SQLite) Root(ctx context.Context, location string) (module.ContentRoot, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE location = ?`, location).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("storage: lookup %s: %w", location, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, location)
	}
	return &sqliteRoot{db: s.db, location: location}, nil
}

// Open implements module.ContentRoot.
func (r *sqliteRoot) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT b.data FROM entries e JOIN blobs b ON b.digest = e.digest
		 WHERE e.location = ? AND e.path = ?`,
		r.location, path,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", r.location, path, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
