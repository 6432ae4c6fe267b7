package store

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/veritasgrid/triagecore/migrations"
)

// Migrate applies every pending goose migration in migrations/ against db.
// It is called once at process start by each cmd/ entrypoint that owns
// schema ownership (cmd/api); workers assume the schema is already current.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}
