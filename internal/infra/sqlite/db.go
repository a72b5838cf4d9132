// Package sqlite is the embedded Store: one SQLite file in WAL mode, one
// JSON document per aggregate.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// FileName is the database file created inside the data directory.
const FileName = "gamify.db"

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sqlx.DB
}

// Open creates or opens the SQLite database at dir/gamify.db.
// Enables WAL mode, a 5-second busy timeout and immediate transactions so
// read-modify-write cycles take the write lock up front.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := "file:" + filepath.Join(dir, FileName) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id        TEXT PRIMARY KEY,
			doc            TEXT NOT NULL,
			total_xp       INTEGER NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_total_xp ON profiles(total_xp DESC)`,

		// Singleton row; the CHECK keeps it that way.
		`CREATE TABLE IF NOT EXISTS leaderboard (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			doc        TEXT NOT NULL,
			week_id    TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO leaderboard (id, doc, week_id, updated_at) VALUES (1, '{}', '', 0)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
