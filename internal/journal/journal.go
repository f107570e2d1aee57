package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/relay/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] upgrades a journal from user_version i to i+1.
var migrations = []string{
	// 1: trace filtering by action type.
	`CREATE INDEX IF NOT EXISTS idx_commits_type ON commits(action_type, seq)`,
}

// dsnParams are applied by the driver to every pooled connection.
const dsnParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"

// ErrIncompatible is matched by errors.Is for a journal written with a
// different IR version, whose state hashes cannot be reproduced.
var ErrIncompatible = errors.New("incompatible journal")

// IncompatibleError reports the version a journal was written with.
type IncompatibleError struct {
	Path  string
	Found string
	Want  string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("journal %s was written with ir_version %s, this build uses %s", e.Path, e.Found, e.Want)
}

func (e *IncompatibleError) Is(target error) bool { return target == ErrIncompatible }

// Journal is a SQLite log of store commits, one row per reduced action.
type Journal struct {
	db   *sql.DB
	path string
}

// Open opens the journal at path, creating it if needed, and brings its
// schema up to date. A journal recorded under another IR version is
// rejected with an *IncompatibleError.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?"+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One writer at a time; a single connection also keeps commits ordered.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path}
	if err := j.prepare(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the file the journal was opened from.
func (j *Journal) Path() string { return j.path }

// Close closes the database. Closing a zero Journal is a no-op.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) prepare(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("journal %s: create schema: %w", j.path, err)
	}
	if err := j.migrate(ctx); err != nil {
		return fmt.Errorf("journal %s: %w", j.path, err)
	}
	return j.checkVersion(ctx)
}

func (j *Journal) migrate(ctx context.Context) error {
	var version int
	if err := j.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for ; version < len(migrations); version++ {
		tx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[version]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", version+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", version+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", version+1, err)
		}
	}
	return nil
}

// checkVersion stamps a fresh journal with the running versions and
// compares the IR version of an existing one. Journals from before the
// meta table are judged by their first commit.
func (j *Journal) checkVersion(ctx context.Context) error {
	found, err := j.meta(ctx, "ir_version")
	if errors.Is(err, sql.ErrNoRows) {
		err = j.db.QueryRowContext(ctx, "SELECT ir_version FROM commits ORDER BY seq LIMIT 1").Scan(&found)
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		found = ir.IRVersion
	case err != nil:
		return fmt.Errorf("journal %s: read ir_version: %w", j.path, err)
	}

	if found != ir.IRVersion {
		return &IncompatibleError{Path: j.path, Found: found, Want: ir.IRVersion}
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('ir_version', ?), ('store_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, ir.IRVersion, ir.StoreVersion)
	if err != nil {
		return fmt.Errorf("journal %s: write versions: %w", j.path, err)
	}
	return nil
}

func (j *Journal) meta(ctx context.Context, key string) (string, error) {
	var value string
	err := j.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	return value, err
}
