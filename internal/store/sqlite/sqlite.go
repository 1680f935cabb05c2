// Package sqlite is a persistent, pure-Go (cgo-free) implementation of
// ports.ContentRepository and ports.UserStateRepository, grounded on the
// teacher's internal/infra/sqlite package (phase3.go's migration-slice and
// DB-wrapper shape, ON CONFLICT upsert style). Where the in-memory
// memstore.Store fixture is for tests, this package is the backend a real
// mobile or server deployment would open against a content snapshot file
// and a per-user state file (§6.4).
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/iqrahapp/iqrah-core/internal/ports"
)

var (
	_ ports.ContentRepository   = (*DB)(nil)
	_ ports.UserStateRepository = (*DB)(nil)
)

// DB wraps a single SQLite connection. The core's two repository interfaces
// are both satisfied by the same *DB — the content snapshot and the
// per-user state live in separate files/connections in production (§6.4),
// but nothing in this type assumes that; open two DBs against two paths to
// get that separation.
type DB struct {
	db *sql.DB
}

// Open opens (creating if absent) a SQLite database at path and applies the
// schema migrations. path may be ":memory:" for an ephemeral instance.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer, matches the teacher's DB wrapper.

	db := &DB{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// migrations returns every schema statement, content tables first, user
// tables second. A single connection may hold both sets — the interfaces
// this package satisfies don't require them to be split, only the
// deployment topology in §6.4 does.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id   INTEGER PRIMARY KEY,
			key  TEXT NOT NULL UNIQUE,
			type INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS node_meta (
			node_id      INTEGER PRIMARY KEY REFERENCES nodes(id),
			foundational REAL NOT NULL DEFAULT 0,
			influence    REAL NOT NULL DEFAULT 0,
			difficulty   REAL NOT NULL DEFAULT 0,
			quran_order  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			source    INTEGER NOT NULL,
			target    INTEGER NOT NULL,
			edge_type INTEGER NOT NULL,
			dist_type INTEGER NOT NULL,
			p1        REAL NOT NULL,
			p2        REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source, edge_type)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_target_dep ON edges(target) WHERE edge_type = 0`,
		`CREATE TABLE IF NOT EXISTS goals (
			id          TEXT PRIMARY KEY,
			group_name  TEXT NOT NULL,
			label       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS goal_members (
			goal_id  TEXT NOT NULL REFERENCES goals(id),
			node_id  INTEGER NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (goal_id, node_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chapter_verses (
			chapter_id INTEGER NOT NULL,
			node_id    INTEGER NOT NULL,
			node_key   TEXT NOT NULL,
			ordinal    INTEGER NOT NULL,
			PRIMARY KEY (chapter_id, ordinal)
		)`,
		`CREATE TABLE IF NOT EXISTS verse_words (
			verse_key TEXT NOT NULL,
			node_id   INTEGER NOT NULL,
			ordinal   INTEGER NOT NULL,
			PRIMARY KEY (verse_key, ordinal)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_states (
			user_id       TEXT NOT NULL,
			node_id       INTEGER NOT NULL,
			stability     REAL NOT NULL,
			difficulty    REAL NOT NULL,
			energy        REAL NOT NULL,
			last_reviewed TEXT NOT NULL,
			due_at        TEXT NOT NULL,
			review_count  INTEGER NOT NULL,
			PRIMARY KEY (user_id, node_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_due ON memory_states(user_id, due_at)`,
		`CREATE TABLE IF NOT EXISTS bandit_arms (
			user_id      TEXT NOT NULL,
			goal_group   TEXT NOT NULL,
			profile_name TEXT NOT NULL,
			successes    REAL NOT NULL DEFAULT 0,
			failures     REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, goal_group, profile_name)
		)`,
		`CREATE TABLE IF NOT EXISTS session_cursors (
			user_id TEXT PRIMARY KEY,
			node_ids TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS user_stats (
			user_id TEXT NOT NULL,
			key     TEXT NOT NULL,
			value   TEXT NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS propagation_log (
			id        TEXT PRIMARY KEY,
			ts        TEXT NOT NULL,
			source    INTEGER NOT NULL,
			updates_json TEXT NOT NULL
		)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w (statement: %s)", err, stmt)
		}
	}
	return nil
}
