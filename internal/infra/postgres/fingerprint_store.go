package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/auditflow/api/pkg/domain/fingerprint"
	"github.com/auditflow/api/pkg/domain/shared"
)

// FingerprintStore implements fingerprint.Store using PostgreSQL.
type FingerprintStore struct {
	db *DB
}

// NewFingerprintStore creates a new FingerprintStore.
func NewFingerprintStore(db *DB) *FingerprintStore {
	return &FingerprintStore{db: db}
}

// Get returns the fingerprint of a file.
func (s *FingerprintStore) Get(ctx context.Context, repoID int64, path string) (*fingerprint.Fingerprint, error) {
	fp := fingerprint.Fingerprint{RepoID: repoID, Path: path}
	err := s.db.QueryRowContext(ctx, `
		SELECT content_hash, last_scanned FROM file_fingerprints
		WHERE repo_id = $1 AND path = $2`, repoID, path,
	).Scan(&fp.ContentHash, &fp.LastScanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	fp.LastScanned = fp.LastScanned.UTC()
	return &fp, nil
}

// Upsert creates or replaces the fingerprint for (repo_id, path).
func (s *FingerprintStore) Upsert(ctx context.Context, fp *fingerprint.Fingerprint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_fingerprints (repo_id, path, content_hash, last_scanned)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (repo_id, path) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			last_scanned = EXCLUDED.last_scanned`,
		fp.RepoID, fp.Path, fp.ContentHash, fp.LastScanned,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fingerprint: %w", err)
	}
	return nil
}
