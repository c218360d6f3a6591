// Package fingerprint defines per-file content fingerprints used to skip
// unchanged files on rescans.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Fingerprint records the content hash of a file the last time it was
// selected for analysis.
type Fingerprint struct {
	RepoID      int64
	Path        string
	ContentHash string
	LastScanned time.Time
}

// Hash returns the hex-encoded sha256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Store persists fingerprints keyed by (repo_id, path).
type Store interface {
	// Get returns shared.ErrNotFound when no fingerprint exists.
	Get(ctx context.Context, repoID int64, path string) (*Fingerprint, error)

	// Upsert creates or replaces the fingerprint for (repo_id, path).
	Upsert(ctx context.Context, fp *Fingerprint) error
}
