package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/h2non/filetype"

	"github.com/auditflow/api/internal/metrics"
	"github.com/auditflow/api/pkg/domain/fingerprint"
	"github.com/auditflow/api/pkg/domain/shared"
	"github.com/auditflow/api/pkg/logger"
)

// probeSize is how much of a file is inspected by the text probe.
const probeSize = 8 << 10

// DefaultExtensions is the source extension allow-list.
var DefaultExtensions = []string{
	".py", ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx",
	".java", ".kt", ".scala", ".go", ".rb", ".php", ".cs",
	".c", ".h", ".cpp", ".hpp", ".rs", ".swift",
	".sql", ".sh", ".bash", ".ps1",
	".html", ".css", ".scss", ".vue", ".svelte",
	".json", ".yaml", ".yml", ".xml", ".toml", ".ini", ".properties", ".tf",
}

// DefaultDeniedNames are package, lock and manifest files. They are not
// authored source and are excluded even when their extension is allowed.
var DefaultDeniedNames = []string{
	"package.json", "package-lock.json", "npm-shrinkwrap.json", "yarn.lock",
	"pnpm-lock.yaml", "bun.lockb", "deno.lock", "bower.json",
	"composer.json", "composer.lock", "gemfile.lock", "cargo.lock",
	"poetry.lock", "pipfile.lock", "go.mod", "go.sum", "mix.lock",
	"packages.lock.json", "project.assets.json", "manifest.json",
}

// DefaultSkipDirs are never descended into.
var DefaultSkipDirs = []string{".git", ".hg", ".svn", "node_modules", "public", ".next"}

// DetectorConfig configures file classification.
type DetectorConfig struct {
	Extensions    []string
	DeniedNames   []string
	SkipDirs      []string
	IgnoreGlobs   []string // doublestar patterns relative to the root
	MinContentLen int      // minimum trimmed content length
}

// DefaultDetectorConfig returns the default classification rules.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Extensions:    DefaultExtensions,
		DeniedNames:   DefaultDeniedNames,
		SkipDirs:      DefaultSkipDirs,
		MinContentLen: 10,
	}
}

// DetectResult is the outcome of one classification pass.
type DetectResult struct {
	Files     []SourceFile // new or modified files, in walk order
	Unchanged int          // fingerprint matched
	Ignored   int          // rejected by classification
	Errors    int          // unreadable or undecodable
}

// ChangeDetector selects the files of a repository tree that need analysis
// and records their fingerprints.
type ChangeDetector struct {
	store      fingerprint.Store
	extensions map[string]bool
	denied     map[string]bool
	skipDirs   map[string]bool
	globs      []string
	minLen     int
	now        func() time.Time
	logger     *logger.Logger
}

// NewChangeDetector creates a ChangeDetector backed by store.
func NewChangeDetector(store fingerprint.Store, cfg DetectorConfig, log *logger.Logger) *ChangeDetector {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.DeniedNames == nil {
		cfg.DeniedNames = DefaultDeniedNames
	}
	if cfg.SkipDirs == nil {
		cfg.SkipDirs = DefaultSkipDirs
	}

	return &ChangeDetector{
		store:      store,
		extensions: lowerSet(cfg.Extensions),
		denied:     lowerSet(cfg.DeniedNames),
		skipDirs:   lowerSet(cfg.SkipDirs),
		globs:      cfg.IgnoreGlobs,
		minLen:     cfg.MinContentLen,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     log.With("component", "change_detector"),
	}
}

// Detect walks root and returns the files whose content changed since the
// last scan of repoID. Fingerprints of selected files are upserted before
// returning. Per-file read errors are counted; store errors abort the walk.
func (d *ChangeDetector) Detect(ctx context.Context, root string, repoID int64) (*DetectResult, error) {
	res := &DetectResult{}

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if walkErr != nil {
			if path == root {
				return walkErr
			}
			d.logger.Warn("cannot access path", "path", rel, "error", walkErr)
			res.Errors++
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonError).Inc()
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if entry.IsDir() {
			if path != root && (d.skipDirs[strings.ToLower(entry.Name())] || d.ignored(rel)) {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || d.ignored(rel) {
			return nil
		}

		if !d.isCodeFile(entry.Name()) {
			res.Ignored++
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonIgnored).Inc()
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			d.logger.Warn("cannot read file", "path", rel, "error", err)
			res.Errors++
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonError).Inc()
			return nil
		}

		switch probe(content) {
		case probeBinary:
			res.Ignored++
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonBinary).Inc()
			return nil
		case probeUndecodable:
			d.logger.Warn("cannot decode file as text", "path", rel)
			res.Errors++
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonError).Inc()
			return nil
		}

		if len(bytes.TrimSpace(content)) < d.minLen {
			res.Ignored++
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonTrivial).Inc()
			return nil
		}

		changed, err := d.recordFingerprint(ctx, repoID, rel, content)
		if err != nil {
			return err
		}
		if !changed {
			res.Unchanged++
			metrics.FilesSkippedTotal.WithLabelValues(metrics.SkipReasonUnchanged).Inc()
			return nil
		}

		res.Files = append(res.Files, SourceFile{Path: rel, Content: string(content)})
		metrics.FilesSelectedTotal.Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("change detection finished",
		"repo_id", repoID,
		"selected", len(res.Files),
		"unchanged", res.Unchanged,
		"ignored", res.Ignored,
		"errors", res.Errors,
	)
	return res, nil
}

// recordFingerprint reports whether content differs from the stored
// fingerprint. Changed or new files are upserted immediately; unchanged
// files leave the store untouched.
func (d *ChangeDetector) recordFingerprint(ctx context.Context, repoID int64, path string, content []byte) (bool, error) {
	hash := fingerprint.Hash(content)

	existing, err := d.store.Get(ctx, repoID, path)
	switch {
	case err == nil && existing.ContentHash == hash:
		return false, nil
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return false, fmt.Errorf("get fingerprint %s: %w", path, err)
	}

	fp := &fingerprint.Fingerprint{
		RepoID:      repoID,
		Path:        path,
		ContentHash: hash,
		LastScanned: d.now(),
	}
	if err := d.store.Upsert(ctx, fp); err != nil {
		return false, fmt.Errorf("upsert fingerprint %s: %w", path, err)
	}
	return true, nil
}

func (d *ChangeDetector) isCodeFile(name string) bool {
	lower := strings.ToLower(name)
	if d.denied[lower] {
		return false
	}
	return d.extensions[filepath.Ext(lower)]
}

func (d *ChangeDetector) ignored(rel string) bool {
	for _, g := range d.globs {
		if g == "" {
			continue
		}
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

type probeResult int

const (
	probeOK probeResult = iota
	probeBinary
	probeUndecodable
)

// probe inspects the first probeSize bytes. Content that decodes as UTF-8
// without NUL bytes is text whatever its leading bytes look like. Content
// that fails decoding is binary when it carries a known file signature and
// undecodable otherwise.
func probe(content []byte) probeResult {
	prefix := content
	truncated := false
	if len(prefix) > probeSize {
		prefix = prefix[:probeSize]
		truncated = true
	}

	if decodesAsText(prefix, truncated) {
		return probeOK
	}
	if kind, err := filetype.Match(prefix); err == nil && kind != filetype.Unknown {
		return probeBinary
	}
	return probeUndecodable
}

func decodesAsText(prefix []byte, truncated bool) bool {
	if bytes.IndexByte(prefix, 0) >= 0 {
		return false
	}
	if truncated {
		// A rune split by the probe boundary is not a decoding error.
		if s := lastRuneStart(prefix); !utf8.FullRune(prefix[s:]) {
			prefix = prefix[:s]
		}
	}
	return utf8.Valid(prefix)
}

func lastRuneStart(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			return i
		}
	}
	return len(b)
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}
