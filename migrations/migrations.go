// Package migrations embeds SQL migration files and provides a function to apply them.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files, one directory per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Dialect is a goose dialect name with its own migration directory.
type Dialect string

// Supported dialects.
const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

// Dir returns the directory inside FS holding migrations for d.
func (d Dialect) Dir() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Setup points goose at the embedded files for d.
func Setup(d Dialect) error {
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(string(d)); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}

// Run applies all pending migrations to the given database.
func Run(db *sql.DB, d Dialect) error {
	if err := Setup(d); err != nil {
		return err
	}
	if err := goose.Up(db, d.Dir()); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
