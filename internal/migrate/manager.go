// Package migrate applies the SQL migrations that back the PostgreSQL
// session registry.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const (
	defaultTable = "schema_migrations"
	upSuffix     = ".up.sql"
	downSuffix   = ".down.sql"
)

// ErrNothingToRollback is returned by Down when no migration is recorded.
var ErrNothingToRollback = errors.New("migrate: no migrations applied")

// Migration is one entry in Status output.
type Migration struct {
	Name    string
	Applied bool
}

// Manager executes paired *.up.sql / *.down.sql files from a filesystem.
type Manager struct {
	db     *sql.DB
	source fs.FS
	table  string
	now    func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithTable overrides the bookkeeping table.
func WithTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.table = name
		}
	}
}

// WithClock overrides the time recorded for applied migrations.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager reading migrations from source.
func NewManager(db *sql.DB, source fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		source: source,
		table:  defaultTable,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies pending migrations in name order and returns the ones it ran.
// Each migration and its bookkeeping row commit in one transaction.
func (m *Manager) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.collect(upSuffix)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, name := range files {
		if executed[name] {
			continue
		}
		record := fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.table)
		if err := m.apply(ctx, name, record, name, m.now().UTC()); err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

// Down rolls back the most recently applied migration and returns its name.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return "", err
	}
	history, err := m.history(ctx)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", ErrNothingToRollback
	}
	last := history[len(history)-1]
	down := strings.TrimSuffix(last, upSuffix) + downSuffix
	if _, err := fs.Stat(m.source, down); err != nil {
		return "", fmt.Errorf("missing down migration for %s", last)
	}
	record := fmt.Sprintf(`delete from %s where name = $1`, m.table)
	if err := m.apply(ctx, down, record, last); err != nil {
		return "", fmt.Errorf("rollback migration %s: %w", last, err)
	}
	return last, nil
}

// Status lists every known migration with whether it has been applied.
func (m *Manager) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return nil, err
	}
	files, err := m.collect(upSuffix)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(files))
	for _, name := range files {
		out = append(out, Migration{Name: name, Applied: executed[name]})
	}
	return out, nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`create table if not exists %s (
		name text primary key,
		applied_at timestamptz not null default now()
	)`, m.table)
	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

// apply runs the statements in file followed by the bookkeeping statement.
func (m *Manager) apply(ctx context.Context, file, record string, args ...any) error {
	data, err := fs.ReadFile(m.source, file)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(data)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	names, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(names))
	for _, name := range names {
		result[name] = true
	}
	return result, nil
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, m.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func (m *Manager) collect(suffix string) ([]string, error) {
	if m.source == nil {
		return nil, errors.New("migrate: no migration source")
	}
	matches, err := fs.Glob(m.source, "*"+suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// splitStatements splits SQL on semicolons outside single-quoted strings and
// drops "--" line comments and empty statements.
func splitStatements(sql string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}
	for _, line := range strings.Split(sql, "\n") {
		if !inString && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, r := range line {
			switch {
			case r == '\'':
				inString = !inString
				current.WriteRune(r)
			case r == ';' && !inString:
				flush()
			default:
				current.WriteRune(r)
			}
		}
		current.WriteRune('\n')
	}
	flush()
	return stmts
}
