// Package migrations applies the embedded PostgreSQL schema migrations.
//
// Migration files are named <version>_<name>.<up|down>.sql. Applied
// versions are recorded in the schema_migrations table.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/auditflow/api/pkg/logger"
)

//go:embed sql/*.sql
var embedded embed.FS

// Files returns the embedded migration files rooted at their directory.
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Runner executes database migrations.
type Runner struct {
	db     *sql.DB
	files  fs.FS
	logger *logger.Logger
}

// NewRunner creates a migration runner over files.
func NewRunner(db *sql.DB, files fs.FS, log *logger.Logger) *Runner {
	return &Runner{
		db:     db,
		files:  files,
		logger: log.With("component", "migrations"),
	}
}

// State is the status of one migration version.
type State struct {
	Version   string     `json:"version" yaml:"version"`
	Name      string     `json:"name" yaml:"name"`
	AppliedAt *time.Time `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}

type migration struct {
	version string
	name    string
}

// EnsureMigrationTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureMigrationTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(14) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func (r *Runner) applied(ctx context.Context) (map[string]time.Time, []string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	set := make(map[string]time.Time)
	var order []string
	for rows.Next() {
		var v string
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, nil, err
		}
		set[v] = at
		order = append(order, v)
	}
	return set, order, rows.Err()
}

// Up applies every pending migration in version order and returns the
// versions it applied.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure migration table: %w", err)
	}

	available, err := scanMigrations(r.files)
	if err != nil {
		return nil, fmt.Errorf("failed to scan migrations: %w", err)
	}
	done, _, err := r.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	var ran []string
	for _, m := range available {
		if _, ok := done[m.version]; ok {
			continue
		}
		if err := r.run(ctx, m, "up"); err != nil {
			return ran, fmt.Errorf("migration %s failed: %w", m.version, err)
		}
		r.logger.Info("migration applied", "version", m.version, "name", m.name)
		ran = append(ran, m.version)
	}
	return ran, nil
}

// Down rolls back the last applied migration and returns its version, or
// "" when nothing is applied.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return "", err
	}
	_, order, err := r.applied(ctx)
	if err != nil {
		return "", err
	}
	if len(order) == 0 {
		return "", nil
	}
	last := order[len(order)-1]

	available, err := scanMigrations(r.files)
	if err != nil {
		return "", err
	}
	for _, m := range available {
		if m.version == last {
			if err := r.run(ctx, m, "down"); err != nil {
				return "", fmt.Errorf("rollback %s failed: %w", last, err)
			}
			r.logger.Info("migration rolled back", "version", last)
			return last, nil
		}
	}
	return "", fmt.Errorf("migration file not found for version %s", last)
}

// Status lists every known migration with its applied time.
func (r *Runner) Status(ctx context.Context) ([]State, error) {
	if err := r.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	done, _, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}
	available, err := scanMigrations(r.files)
	if err != nil {
		return nil, err
	}

	states := make([]State, 0, len(available))
	for _, m := range available {
		st := State{Version: m.version, Name: m.name}
		if at, ok := done[m.version]; ok {
			st.AppliedAt = &at
		}
		states = append(states, st)
	}
	return states, nil
}

// run executes one migration file and its bookkeeping in a transaction.
func (r *Runner) run(ctx context.Context, m migration, direction string) error {
	content, err := fs.ReadFile(r.files, fileName(m, direction))
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return err
	}

	if direction == "up" {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func fileName(m migration, direction string) string {
	return fmt.Sprintf("%s_%s.%s.sql", m.version, m.name, direction)
}

// scanMigrations lists the migrations that have an up file, ordered by version.
func scanMigrations(files fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		base := strings.TrimSuffix(path.Base(e.Name()), ".up.sql")
		version, name, ok := strings.Cut(base, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("malformed migration file name: %s", e.Name())
		}
		if seen[version] {
			return nil, fmt.Errorf("duplicate migration version: %s", version)
		}
		seen[version] = true
		out = append(out, migration{version: version, name: name})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}
