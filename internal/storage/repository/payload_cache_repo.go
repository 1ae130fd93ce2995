package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/storage/models"
)

// PayloadCacheRepository stores upstream payloads with an expiry.
type PayloadCacheRepository interface {
	// Get returns the payload for key, or nil when it is missing or expired at now.
	Get(ctx context.Context, key string, now time.Time) (*models.CachedPayload, error)

	// Put stores payload under key, replacing any previous entry.
	Put(ctx context.Context, p *models.CachedPayload) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)

	// DeleteExpired removes entries whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
}

type payloadCacheRepository struct {
	db Querier
}

// NewPayloadCacheRepository creates a payload cache repository.
func NewPayloadCacheRepository(db Querier) PayloadCacheRepository {
	return &payloadCacheRepository{db: db}
}

func (r *payloadCacheRepository) Get(ctx context.Context, key string, now time.Time) (*models.CachedPayload, error) {
	var (
		p                  models.CachedPayload
		fetched, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT key, payload, fetched_at, expires_at
		FROM payload_cache
		WHERE key = ? AND expires_at > ?
	`, key, toMillis(now)).Scan(&p.Key, &p.Payload, &fetched, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached payload %s: %w", key, err)
	}
	p.FetchedAt = fromMillis(fetched)
	p.ExpiresAt = fromMillis(expiresAt)
	return &p, nil
}

func (r *payloadCacheRepository) Put(ctx context.Context, p *models.CachedPayload) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payload_cache (key, payload, fetched_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at
	`, p.Key, p.Payload, toMillis(p.FetchedAt), toMillis(p.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to cache payload %s: %w", p.Key, err)
	}
	return nil
}

func (r *payloadCacheRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM payload_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cached payload %s: %w", key, err)
	}
	return nil
}

func (r *payloadCacheRepository) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	res, err := r.db.ExecContext(ctx, `DELETE FROM payload_cache WHERE key LIKE ? ESCAPE '\'`, escaped+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to delete cached payloads with prefix %s: %w", prefix, err)
	}
	return res.RowsAffected()
}

func (r *payloadCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM payload_cache WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired payloads: %w", err)
	}
	return res.RowsAffected()
}

func (r *payloadCacheRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payload_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cached payloads: %w", err)
	}
	return n, nil
}
