// Package sqlite keeps file fingerprints in a local database file so that
// repeated local scans can skip unchanged files without a server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/auditflow/api/pkg/domain/fingerprint"
	"github.com/auditflow/api/pkg/domain/shared"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_fingerprints (
	repo_id      INTEGER NOT NULL,
	path         TEXT    NOT NULL,
	content_hash TEXT    NOT NULL,
	last_scanned TEXT    NOT NULL,
	PRIMARY KEY (repo_id, path)
);`

// FingerprintStore implements fingerprint.Store on a SQLite file.
type FingerprintStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the fingerprint database at path.
func Open(path string) (*FingerprintStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create fingerprint dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open fingerprint db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init fingerprint db: %w", err)
	}
	return &FingerprintStore{db: db}, nil
}

// Close closes the database.
func (s *FingerprintStore) Close() error {
	return s.db.Close()
}

// Get returns the fingerprint of a file.
func (s *FingerprintStore) Get(ctx context.Context, repoID int64, path string) (*fingerprint.Fingerprint, error) {
	var scanned string
	fp := fingerprint.Fingerprint{RepoID: repoID, Path: path}
	err := s.db.QueryRowContext(ctx,
		`SELECT content_hash, last_scanned FROM file_fingerprints WHERE repo_id = ? AND path = ?`,
		repoID, path,
	).Scan(&fp.ContentHash, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fingerprint: %w", err)
	}

	fp.LastScanned, err = time.Parse(time.RFC3339Nano, scanned)
	if err != nil {
		return nil, fmt.Errorf("parse last_scanned: %w", err)
	}
	return &fp, nil
}

// Upsert creates or replaces the fingerprint for (repo_id, path).
func (s *FingerprintStore) Upsert(ctx context.Context, fp *fingerprint.Fingerprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_fingerprints (repo_id, path, content_hash, last_scanned)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (repo_id, path) DO UPDATE SET
			content_hash = excluded.content_hash,
			last_scanned = excluded.last_scanned`,
		fp.RepoID, fp.Path, fp.ContentHash, fp.LastScanned.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert fingerprint: %w", err)
	}
	return nil
}
