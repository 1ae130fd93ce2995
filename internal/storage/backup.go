package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const backupPrefix = "chuni_"

// BackupInfo describes one backup file.
type BackupInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// BackupDir returns the default backup directory next to the database.
func (db *DB) BackupDir() string {
	if db.path == MemoryPath {
		return ""
	}
	return filepath.Join(filepath.Dir(db.path), "backups")
}

// Backup writes a consistent copy of the database into dir using
// VACUUM INTO and verifies it. An empty dir uses BackupDir.
func (db *DB) Backup(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = db.BackupDir()
	}
	if dir == "" {
		return "", fmt.Errorf("backup directory required for in-memory database")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(dir, backupPrefix+time.Now().Format("20060102_150405.000")+".db")
	if _, err := db.conn.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return "", fmt.Errorf("failed to back up database: %w", err)
	}
	if err := VerifyBackup(path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// VerifyBackup checks that path is a readable database with the schema
// applied.
func VerifyBackup(path string) error {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'simulations'").Scan(&n); err != nil {
		return fmt.Errorf("failed to query backup: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("backup %s has no simulations table", path)
	}
	return nil
}

// ListBackups returns the backups in dir, newest first. A missing dir
// yields an empty list.
func ListBackups(dir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || filepath.Ext(name) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:    filepath.Join(dir, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	// Names embed the timestamp, so they sort chronologically.
	sort.Slice(backups, func(i, j int) bool { return backups[i].Name > backups[j].Name })
	return backups, nil
}

// PruneBackups deletes all but the newest keep backups in dir and returns
// how many were removed.
func PruneBackups(dir string, keep int) (int, error) {
	backups, err := ListBackups(dir)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for i := keep; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", backups[i].Name, err)
		}
		removed++
	}
	return removed, nil
}
