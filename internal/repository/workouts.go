package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/atinyakov/liftlog/internal/models"
)

// PostgresWorkoutRepository stores workouts and measurements.
type PostgresWorkoutRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresWorkoutRepository creates a PostgresWorkoutRepository over db.
func NewPostgresWorkoutRepository(db *sql.DB) *PostgresWorkoutRepository {
	return &PostgresWorkoutRepository{DB: db}
}

// ListWorkouts returns the user's workouts, newest first.
func (r *PostgresWorkoutRepository) ListWorkouts(ctx context.Context, userID string) ([]models.Workout, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, name, started_at, exercises, notes, updated_at FROM workouts
		WHERE user_id = $1
		ORDER BY started_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListWorkouts: %w", err)
	}
	defer rows.Close()

	workouts := []models.Workout{}
	for rows.Next() {
		var (
			w         models.Workout
			exercises []byte
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.StartedAt, &exercises, &w.Notes, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(exercises, &w.Exercises); err != nil {
			return nil, fmt.Errorf("decode exercises of %s: %w", w.ID, err)
		}
		workouts = append(workouts, w)
	}
	return workouts, rows.Err()
}

// UpsertWorkout inserts w or replaces the user's existing workout with the
// same id. An id owned by another user yields ErrConflict.
func (r *PostgresWorkoutRepository) UpsertWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error) {
	exercises, err := encodeExercises(w.Exercises)
	if err != nil {
		return models.Workout{}, err
	}
	err = r.DB.QueryRowContext(ctx, `
		INSERT INTO workouts (id, user_id, name, started_at, exercises, notes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			started_at = EXCLUDED.started_at,
			exercises = EXCLUDED.exercises,
			notes = EXCLUDED.notes,
			updated_at = now()
		WHERE workouts.user_id = EXCLUDED.user_id
		RETURNING updated_at
	`, w.ID, userID, w.Name, w.StartedAt, exercises, w.Notes).Scan(&w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workout{}, fmt.Errorf("workout %s: %w", w.ID, ErrConflict)
	}
	if err != nil {
		return models.Workout{}, fmt.Errorf("upsert workout: %w", err)
	}
	return w, nil
}

// UpdateWorkout replaces an existing workout. A missing id yields ErrNotFound.
func (r *PostgresWorkoutRepository) UpdateWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error) {
	exercises, err := encodeExercises(w.Exercises)
	if err != nil {
		return models.Workout{}, err
	}
	err = r.DB.QueryRowContext(ctx, `
		UPDATE workouts SET name = $3, started_at = $4, exercises = $5, notes = $6, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING updated_at
	`, w.ID, userID, w.Name, w.StartedAt, exercises, w.Notes).Scan(&w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workout{}, ErrNotFound
	}
	if err != nil {
		return models.Workout{}, fmt.Errorf("update workout: %w", err)
	}
	return w, nil
}

// DeleteWorkout removes a workout. A missing id yields ErrNotFound.
func (r *PostgresWorkoutRepository) DeleteWorkout(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM workouts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	return expectOne(res)
}

// ListMeasurements returns the user's measurements, oldest first.
func (r *PostgresWorkoutRepository) ListMeasurements(ctx context.Context, userID string) ([]models.Measurement, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, kind, value, unit, taken_at FROM measurements
		WHERE user_id = $1
		ORDER BY taken_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListMeasurements: %w", err)
	}
	defer rows.Close()

	out := []models.Measurement{}
	for rows.Next() {
		var m models.Measurement
		if err := rows.Scan(&m.ID, &m.Kind, &m.Value, &m.Unit, &m.TakenAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertMeasurement inserts m or replaces the user's measurement with the
// same id.
func (r *PostgresWorkoutRepository) UpsertMeasurement(ctx context.Context, userID string, m models.Measurement) error {
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO measurements (id, user_id, kind, value, unit, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			taken_at = EXCLUDED.taken_at
		WHERE measurements.user_id = EXCLUDED.user_id
	`, m.ID, userID, m.Kind, m.Value, m.Unit, m.TakenAt)
	if err != nil {
		return fmt.Errorf("upsert measurement: %w", err)
	}
	if err := expectOne(res); err != nil {
		return fmt.Errorf("measurement %s: %w", m.ID, ErrConflict)
	}
	return nil
}

// UpdateMeasurement replaces an existing measurement.
func (r *PostgresWorkoutRepository) UpdateMeasurement(ctx context.Context, userID string, m models.Measurement) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE measurements SET kind = $3, value = $4, unit = $5, taken_at = $6
		WHERE id = $1 AND user_id = $2
	`, m.ID, userID, m.Kind, m.Value, m.Unit, m.TakenAt)
	if err != nil {
		return fmt.Errorf("update measurement: %w", err)
	}
	return expectOne(res)
}

// DeleteMeasurement removes a measurement.
func (r *PostgresWorkoutRepository) DeleteMeasurement(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM measurements WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete measurement: %w", err)
	}
	return expectOne(res)
}

func encodeExercises(ex []models.Exercise) ([]byte, error) {
	if ex == nil {
		ex = []models.Exercise{}
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return nil, fmt.Errorf("encode exercises: %w", err)
	}
	return b, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
