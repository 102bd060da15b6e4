package database

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Migrate applies every *.sql file in files in lexical order. The scripts
// are expected to be idempotent (CREATE ... IF NOT EXISTS).
func Migrate(ctx context.Context, db *sqlx.DB, files fs.FS) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("Migration applied")
	}
	return nil
}
