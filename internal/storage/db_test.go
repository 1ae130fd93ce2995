package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig("test.db")

	if config.Path != "test.db" {
		t.Errorf("expected path 'test.db', got '%s'", config.Path)
	}
	if config.MaxOpenConns != 10 {
		t.Errorf("expected MaxOpenConns 10, got %d", config.MaxOpenConns)
	}
	if config.BusyTimeout != 5*time.Second {
		t.Errorf("expected BusyTimeout 5s, got %v", config.BusyTimeout)
	}
	if config.JournalMode != "WAL" {
		t.Errorf("expected JournalMode 'WAL', got '%s'", config.JournalMode)
	}
	if !config.AutoMigrate {
		t.Error("expected AutoMigrate to default to true")
	}
}

func TestConfig_DSN(t *testing.T) {
	dsn := DefaultConfig("x.db").dsn()
	want := "x.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	if dsn != want {
		t.Errorf("expected %s, got %s", want, dsn)
	}
}

func TestOpenInMemory_Migrated(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"payload_cache", "simulations", "settings"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.db")
	db, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("expected path %s, got %s", path, db.Path())
	}
	if err := db.Ping(); err != nil {
		t.Errorf("failed to ping database: %v", err)
	}
}

func TestOpenWithNilConfig(t *testing.T) {
	if _, err := Open(nil); err == nil {
		t.Error("expected error when opening with nil config")
	}
}

func TestClose(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("failed to close database: %v", err)
	}
	if err := db.Ping(); err == nil {
		t.Error("expected error when pinging closed database")
	}
}
