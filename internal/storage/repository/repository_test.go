package repository

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE payload_cache (
	key TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE simulations (
	id TEXT PRIMARY KEY,
	user_name TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL,
	preference TEXT NOT NULL,
	target_rating REAL NOT NULL,
	final_phase TEXT NOT NULL,
	final_overall REAL NOT NULL,
	iterations INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	input_json TEXT,
	output_json TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
