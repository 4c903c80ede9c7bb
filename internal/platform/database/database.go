package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"urlbox/internal/platform/config"
)

const memoryPath = ":memory:"

// Open connects to the sqlite database at cfg.Path, creating its directory
// when needed. An in-memory database is limited to a single connection so
// every query sees the same schema.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	path := strings.TrimPrefix(cfg.Path, "file:")
	if path == "" {
		return nil, fmt.Errorf("database: path is required")
	}

	maxConns := cfg.MaxConnections
	dsn := path
	if path == memoryPath {
		maxConns = 1
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("database: create directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}
	if maxConns <= 0 {
		maxConns = 1
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if path != memoryPath {
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
