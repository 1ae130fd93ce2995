package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/storage/models"
)

// SimulationRepository persists simulation runs.
type SimulationRepository interface {
	// Create inserts a run.
	Create(ctx context.Context, rec *models.SimulationRecord) error

	// GetByID returns a run, or nil when it is missing or expired at now.
	GetByID(ctx context.Context, id string, now time.Time) (*models.SimulationRecord, error)

	// ListByUser returns the newest unexpired runs for user.
	ListByUser(ctx context.Context, user string, limit int, now time.Time) ([]*models.SimulationSummary, error)

	// DeleteExpired removes runs whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type simulationRepository struct {
	db Querier
}

// NewSimulationRepository creates a simulation repository.
func NewSimulationRepository(db Querier) SimulationRepository {
	return &simulationRepository{db: db}
}

func (r *simulationRepository) Create(ctx context.Context, rec *models.SimulationRecord) error {
	var input any
	if rec.InputJSON != nil {
		input = string(rec.InputJSON)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO simulations (
			id, user_name, mode, preference, target_rating, final_phase, final_overall,
			iterations, duration_ms, input_json, output_json, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.User, rec.Mode, rec.Preference, rec.TargetRating, rec.FinalPhase, rec.FinalOverall,
		rec.Iterations, rec.DurationMs, input, string(rec.OutputJSON),
		toMillis(rec.CreatedAt), toMillis(rec.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create simulation %s: %w", rec.ID, err)
	}
	return nil
}

func (r *simulationRepository) GetByID(ctx context.Context, id string, now time.Time) (*models.SimulationRecord, error) {
	var (
		rec                models.SimulationRecord
		input              sql.NullString
		output             string
		created, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_name, mode, preference, target_rating, final_phase, final_overall,
			iterations, duration_ms, input_json, output_json, created_at, expires_at
		FROM simulations
		WHERE id = ? AND expires_at > ?
	`, id, toMillis(now)).Scan(
		&rec.ID, &rec.User, &rec.Mode, &rec.Preference, &rec.TargetRating, &rec.FinalPhase, &rec.FinalOverall,
		&rec.Iterations, &rec.DurationMs, &input, &output, &created, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get simulation %s: %w", id, err)
	}
	if input.Valid {
		rec.InputJSON = []byte(input.String)
	}
	rec.OutputJSON = []byte(output)
	rec.CreatedAt = fromMillis(created)
	rec.ExpiresAt = fromMillis(expiresAt)
	return &rec, nil
}

func (r *simulationRepository) ListByUser(ctx context.Context, user string, limit int, now time.Time) ([]*models.SimulationSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_name, mode, preference, target_rating, final_phase, final_overall, iterations, created_at
		FROM simulations
		WHERE user_name = ? AND expires_at > ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`, user, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list simulations for %s: %w", user, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.SimulationSummary
	for rows.Next() {
		var (
			s       models.SimulationSummary
			created int64
		)
		if err := rows.Scan(&s.ID, &s.User, &s.Mode, &s.Preference, &s.TargetRating, &s.FinalPhase, &s.FinalOverall, &s.Iterations, &created); err != nil {
			return nil, fmt.Errorf("failed to scan simulation: %w", err)
		}
		s.CreatedAt = fromMillis(created)
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating simulations: %w", err)
	}
	return out, nil
}

func (r *simulationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM simulations WHERE expires_at <= ?", toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired simulations: %w", err)
	}
	return res.RowsAffected()
}
