package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/storage/models"
	"github.com/ramonehamilton/CHUNI-Companion/internal/storage/repository"
)

// Settings keys.
const (
	excludedKeyPrefix = "excluded:"
	secretKeyPrefix   = "secret:"
)

// ErrNotFound is returned for missing settings and secrets.
var ErrNotFound = repository.ErrSettingNotFound

// SweepResult counts rows removed by a sweep.
type SweepResult struct {
	Payloads    int64 `json:"payloads"`
	Simulations int64 `json:"simulations"`
}

// Service provides the storage operations used by the planner and API.
type Service struct {
	db          *DB
	cache       repository.PayloadCacheRepository
	simulations repository.SimulationRepository
	settings    repository.SettingsRepository
	now         func() time.Time
}

// NewService creates a storage service.
func NewService(db *DB) *Service {
	return &Service{
		db:          db,
		cache:       repository.NewPayloadCacheRepository(db.Conn()),
		simulations: repository.NewSimulationRepository(db.Conn()),
		settings:    repository.NewSettingsRepository(db.Conn()),
		now:         time.Now,
	}
}

// GetPayload decodes the cached value for key into dst. hit is false when
// the key is missing or expired.
func (s *Service) GetPayload(ctx context.Context, key string, dst any) (hit bool, fetchedAt time.Time, err error) {
	p, err := s.cache.Get(ctx, key, s.now())
	if err != nil || p == nil {
		return false, time.Time{}, err
	}
	if err := json.Unmarshal(p.Payload, dst); err != nil {
		return false, time.Time{}, fmt.Errorf("failed to decode cached payload %s: %w", key, err)
	}
	return true, p.FetchedAt, nil
}

// PutPayload stores v as JSON under key for ttl.
func (s *Service) PutPayload(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload %s: %w", key, err)
	}
	now := s.now()
	return s.cache.Put(ctx, &models.CachedPayload{
		Key:       key,
		Payload:   data,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	})
}

// InvalidatePrefix drops every cached payload whose key starts with prefix.
func (s *Service) InvalidatePrefix(ctx context.Context, prefix string) (int64, error) {
	return s.cache.DeletePrefix(ctx, prefix)
}

// CacheSize returns the number of cached payloads.
func (s *Service) CacheSize(ctx context.Context) (int64, error) {
	return s.cache.Count(ctx)
}

// SaveSimulation persists a run.
func (s *Service) SaveSimulation(ctx context.Context, rec *models.SimulationRecord) error {
	return s.simulations.Create(ctx, rec)
}

// GetSimulation returns a run, or nil when it is unknown or expired.
func (s *Service) GetSimulation(ctx context.Context, id string) (*models.SimulationRecord, error) {
	return s.simulations.GetByID(ctx, id, s.now())
}

// ListSimulations returns the newest runs for user.
func (s *Service) ListSimulations(ctx context.Context, user string, limit int) ([]*models.SimulationSummary, error) {
	return s.simulations.ListByUser(ctx, user, limit, s.now())
}

// ExcludedKeys returns the song keys user excluded from improvement.
func (s *Service) ExcludedKeys(ctx context.Context, user string) ([]string, error) {
	var keys []string
	err := s.settings.GetTyped(ctx, excludedKeyPrefix+user, &keys)
	if errors.Is(err, repository.ErrSettingNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// SetExcludedKeys replaces the exclusion set of user.
func (s *Service) SetExcludedKeys(ctx context.Context, user string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	return s.settings.Set(ctx, excludedKeyPrefix+user, keys)
}

// StoreSecret encrypts value and stores it under name.
func (s *Service) StoreSecret(ctx context.Context, name, value string, enc *EncryptionConfig) error {
	sealed, err := EncryptSecret(value, enc)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret %s: %w", name, err)
	}
	return s.settings.Set(ctx, secretKeyPrefix+name, sealed)
}

// LoadSecret decrypts the secret stored under name. A missing secret
// returns an error wrapping ErrNotFound.
func (s *Service) LoadSecret(ctx context.Context, name string, enc *EncryptionConfig) (string, error) {
	var sealed string
	if err := s.settings.GetTyped(ctx, secretKeyPrefix+name, &sealed); err != nil {
		return "", err
	}
	value, err := DecryptSecret(sealed, enc)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret %s: %w", name, err)
	}
	return value, nil
}

// Sweep removes expired payloads and simulations in one transaction.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now()
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		if res.Payloads, err = repository.NewPayloadCacheRepository(tx).DeleteExpired(ctx, now); err != nil {
			return err
		}
		res.Simulations, err = repository.NewSimulationRepository(tx).DeleteExpired(ctx, now)
		return err
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to sweep expired rows: %w", err)
	}
	return res, nil
}

// Close closes the database connection.
func (s *Service) Close() error {
	return s.db.Close()
}
