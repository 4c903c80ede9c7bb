package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Migrate applies (up) or reverts (down) the NNN_name.{up,down}.sql files in
// files. Applied versions are tracked in schema_migrations so running up
// twice is a no-op.
func Migrate(db *sql.DB, files fs.FS, direction string) error {
	if direction != DirectionUp && direction != DirectionDown {
		return fmt.Errorf("database: invalid migration direction %q", direction)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("database: create schema_migrations: %w", err)
	}

	names, err := fs.Glob(files, "*."+direction+".sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	if direction == DirectionDown {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	applied, err := appliedVersions(db)
	if err != nil {
		return err
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, "."+direction+".sql")
		if (direction == DirectionUp) == applied[version] {
			continue
		}

		content, err := fs.ReadFile(files, name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		log.Info().Str("migration", name).Msg("applying migration")
		if err := applyMigration(db, version, direction, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
	}
	return nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(db *sql.DB, version, direction, statements string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(statements); err != nil {
		return err
	}

	if direction == DirectionUp {
		_, err = tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, time.Now().Unix())
	} else {
		_, err = tx.Exec(`DELETE FROM schema_migrations WHERE version = ?`, version)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}
