// Package outbox embeds the SQLite schema of the device agent outbox.
package outbox

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var embedMigrations embed.FS

// Migrate applies all pending outbox migrations to db.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("outbox migration error: %w", errors.New("db is nil"))
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, embedMigrations)
	if err != nil {
		return fmt.Errorf("outbox migration error creating provider: %w", err)
	}
	if _, err = provider.Up(context.Background()); err != nil {
		return fmt.Errorf("outbox migration error: %w", err)
	}
	return nil
}
