// Package repository provides data access for cached payloads, simulation
// results and settings.
package repository

import (
	"context"
	"database/sql"
	"time"
)

// Querier is satisfied by *sql.DB and *sql.Tx so repositories can run
// inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Timestamps are stored as unix milliseconds.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}
