package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/pkg/domain/scanjob"
)

// LocalMaterializer serves an existing directory as the workspace of every
// scan. The directory is never removed.
type LocalMaterializer struct {
	root string
}

// NewLocalMaterializer accepts a directory path or a file:// URL.
func NewLocalMaterializer(source string) (*LocalMaterializer, error) {
	root := strings.TrimPrefix(source, "file://")
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", source, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &LocalMaterializer{root: abs}, nil
}

// Materialize implements scan.Materializer.
func (m *LocalMaterializer) Materialize(context.Context, scanjob.Trigger) (scan.Workspace, error) {
	return localDir(m.root), nil
}

type localDir string

func (d localDir) Root() string { return string(d) }

func (localDir) Close() error { return nil }
