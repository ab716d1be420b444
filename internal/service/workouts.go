package service

import (
	"context"
	"errors"
	"strings"

	"github.com/atinyakov/liftlog/internal/models"
	"github.com/atinyakov/liftlog/internal/repository"
)

var (
	// ErrNotFound is returned for an id the user does not own.
	ErrNotFound = errors.New("not found")
	// ErrIDTaken is returned when a client-chosen id belongs to another user.
	ErrIDTaken = errors.New("id already in use")
)

// WorkoutRepository defines the persistence operations needed by the
// workout and measurement services.
type WorkoutRepository interface {
	ListWorkouts(ctx context.Context, userID string) ([]models.Workout, error)
	UpsertWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error)
	UpdateWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error)
	DeleteWorkout(ctx context.Context, userID, id string) error

	ListMeasurements(ctx context.Context, userID string) ([]models.Measurement, error)
	UpsertMeasurement(ctx context.Context, userID string, m models.Measurement) error
	UpdateMeasurement(ctx context.Context, userID string, m models.Measurement) error
	DeleteMeasurement(ctx context.Context, userID, id string) error
}

// WorkoutService implements the training log API. Creates are upserts keyed
// by the client's id so a replayed create is harmless.
type WorkoutService struct {
	repo WorkoutRepository
}

func NewWorkoutService(repo WorkoutRepository) *WorkoutService {
	return &WorkoutService{repo: repo}
}

func (s *WorkoutService) ListWorkouts(ctx context.Context, userID string) ([]models.Workout, error) {
	return s.repo.ListWorkouts(ctx, userID)
}

func (s *WorkoutService) CreateWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error) {
	w.Name = strings.TrimSpace(w.Name)
	out, err := s.repo.UpsertWorkout(ctx, userID, w)
	return out, mapErr(err)
}

func (s *WorkoutService) UpdateWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error) {
	w.Name = strings.TrimSpace(w.Name)
	out, err := s.repo.UpdateWorkout(ctx, userID, w)
	return out, mapErr(err)
}

func (s *WorkoutService) DeleteWorkout(ctx context.Context, userID, id string) error {
	return mapErr(s.repo.DeleteWorkout(ctx, userID, id))
}

func (s *WorkoutService) ListMeasurements(ctx context.Context, userID string) ([]models.Measurement, error) {
	return s.repo.ListMeasurements(ctx, userID)
}

func (s *WorkoutService) CreateMeasurement(ctx context.Context, userID string, m models.Measurement) (models.Measurement, error) {
	m.Kind = strings.ToLower(strings.TrimSpace(m.Kind))
	return m, mapErr(s.repo.UpsertMeasurement(ctx, userID, m))
}

func (s *WorkoutService) UpdateMeasurement(ctx context.Context, userID string, m models.Measurement) (models.Measurement, error) {
	m.Kind = strings.ToLower(strings.TrimSpace(m.Kind))
	return m, mapErr(s.repo.UpdateMeasurement(ctx, userID, m))
}

func (s *WorkoutService) DeleteMeasurement(ctx context.Context, userID, id string) error {
	return mapErr(s.repo.DeleteMeasurement(ctx, userID, id))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrIDTaken
	default:
		return err
	}
}
