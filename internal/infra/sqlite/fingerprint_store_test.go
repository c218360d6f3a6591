package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/api/pkg/domain/fingerprint"
	"github.com/auditflow/api/pkg/domain/shared"
)

func TestFingerprintStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "fingerprints.db")

	store, err := Open(path)
	require.NoError(t, err)

	_, err = store.Get(ctx, 1, "main.go")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	first := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, &fingerprint.Fingerprint{
		RepoID: 1, Path: "main.go", ContentHash: fingerprint.Hash([]byte("v1")), LastScanned: first,
	}))
	require.NoError(t, store.Upsert(ctx, &fingerprint.Fingerprint{
		RepoID: 1, Path: "main.go", ContentHash: fingerprint.Hash([]byte("v2")), LastScanned: first.Add(time.Hour),
	}))

	got, err := store.Get(ctx, 1, "main.go")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Hash([]byte("v2")), got.ContentHash)
	assert.True(t, got.LastScanned.Equal(first.Add(time.Hour)))

	_, err = store.Get(ctx, 2, "main.go")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err = reopened.Get(ctx, 1, "main.go")
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Hash([]byte("v2")), got.ContentHash)
}
