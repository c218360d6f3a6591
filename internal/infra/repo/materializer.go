package repo

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/logger"
)

// URLResolver maps a repository id to a clone URL.
type URLResolver interface {
	CloneURL(ctx context.Context, repoID int64) (string, error)
}

// Options configures a GitMaterializer.
type Options struct {
	WorkDir string
	Token   string
	Depth   int // 0 clones full history
	Timeout time.Duration
}

// GitMaterializer clones repositories into per-scan working directories.
type GitMaterializer struct {
	resolver URLResolver
	opts     Options
	logger   *logger.Logger
}

// NewGitMaterializer creates a GitMaterializer.
func NewGitMaterializer(resolver URLResolver, opts Options, log *logger.Logger) *GitMaterializer {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &GitMaterializer{
		resolver: resolver,
		opts:     opts,
		logger:   log.With("component", "git_materializer"),
	}
}

// Materialize clones the repository of trigger into
// <workdir>/repo-<repo_id>-<scan_id>.
func (m *GitMaterializer) Materialize(ctx context.Context, trigger scanjob.Trigger) (scan.Workspace, error) {
	cloneURL, err := m.resolver.CloneURL(ctx, trigger.RepoID)
	if err != nil {
		return nil, fmt.Errorf("resolve clone url: %w", err)
	}
	authURL, err := withToken(cloneURL, m.opts.Token)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(m.opts.WorkDir, fmt.Sprintf("repo-%d-%s", trigger.RepoID, trigger.ScanID))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear workspace: %w", err)
	}

	if m.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          authURL,
		Depth:        m.opts.Depth,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("clone repository %d: %w", trigger.RepoID, redactError(err, m.opts.Token))
	}

	m.logger.Debug("repository cloned",
		"repo_id", trigger.RepoID,
		"scan_id", trigger.ScanID,
		"duration", time.Since(start),
	)
	return &checkout{root: dir}, nil
}

// withToken embeds oauth2:<token> as the userinfo of HTTP(S) clone URLs.
// Other URLs are returned unchanged.
func withToken(rawURL, token string) (string, error) {
	if token == "" {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid clone url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return rawURL, nil
	}
	u.User = url.UserPassword("oauth2", token)
	return u.String(), nil
}

func redactError(err error, token string) error {
	if token == "" {
		return err
	}
	return redacted{err: err, token: token}
}

type redacted struct {
	err   error
	token string
}

func (r redacted) Error() string {
	return strings.ReplaceAll(r.err.Error(), r.token, "***")
}

func (r redacted) Unwrap() error { return r.err }

// checkout is a cloned working directory removed on Close.
type checkout struct {
	root string
}

func (c *checkout) Root() string { return c.root }

func (c *checkout) Close() error { return os.RemoveAll(c.root) }
