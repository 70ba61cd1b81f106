package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir holds the Postgres schema for orders, stock, returns and the outbox.
const DefaultDir = "pkg/migrate/migrations"

const dialect = "postgres"

// Runner applies the goose migrations in dir to a Postgres database.
type Runner struct {
	db  *sql.DB
	dir string
}

func NewRunner(db *sql.DB, dir string) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dir == "" {
		dir = DefaultDir
	}
	if err := goose.SetDialect(dialect); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return &Runner{db: db, dir: dir}, nil
}

// Exec runs a goose command (up, down, status, redo, reset).
func (r *Runner) Exec(ctx context.Context, command string, args ...string) error {
	if err := goose.RunContext(ctx, command, r.db, r.dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

func (r *Runner) Up(ctx context.Context) error { return r.Exec(ctx, "up") }

// Current reports the version recorded in the goose version table.
func (r *Runner) Current(ctx context.Context) (int64, error) {
	v, err := goose.GetDBVersionContext(ctx, r.db)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return v, nil
}

// To moves the schema up or down until it sits at target.
func (r *Runner) To(ctx context.Context, target string) error {
	version, err := ParseVersion(target)
	if err != nil {
		return err
	}
	current, err := r.Current(ctx)
	if err != nil {
		return err
	}

	switch {
	case current < version:
		if err := goose.UpToContext(ctx, r.db, r.dir, version); err != nil {
			return fmt.Errorf("goose up-to %d: %w", version, err)
		}
	case current > version:
		if err := goose.DownToContext(ctx, r.db, r.dir, version); err != nil {
			return fmt.Errorf("goose down-to %d: %w", version, err)
		}
	}
	return nil
}

// ParseVersion accepts the 14 digit timestamp prefix used by migration files.
func ParseVersion(raw string) (int64, error) {
	if len(raw) != versionLayoutLen {
		return 0, fmt.Errorf("invalid version %q: expected YYYYMMDDHHMMSS", raw)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return v, nil
}
