// Package migrations embeds the SQL schema for every store driver and applies it with golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed spanner/schema.sql
var spannerDDL string

// UpPostgres applies pending Postgres migrations. It takes ownership of db and closes it.
func UpPostgres(db *sql.DB) error {
	drv, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("postgres migrate driver: %w", err)
	}
	return up(postgresFS, "postgres", "pgx5", drv)
}

// UpSQLite applies pending SQLite migrations. It takes ownership of db and closes it.
func UpSQLite(db *sql.DB) error {
	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	return up(sqliteFS, "sqlite", "sqlite", drv)
}

func up(fsys fs.FS, dir, name string, drv database.Driver) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, drv)
	if err != nil {
		_ = src.Close()
		_ = drv.Close()
		return fmt.Errorf("migrate init: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// SpannerDDL returns the CREATE TABLE / INDEX statements for Spanner, split on semicolons.
func SpannerDDL() []string {
	parts := strings.Split(spannerDDL, ";")
	var out []string
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
