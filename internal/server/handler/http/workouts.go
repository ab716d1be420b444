package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/atinyakov/liftlog/internal/middleware"
	"github.com/atinyakov/liftlog/internal/models"
	"github.com/atinyakov/liftlog/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// WorkoutService defines the training log operations required by the
// handlers.
type WorkoutService interface {
	ListWorkouts(ctx context.Context, userID string) ([]models.Workout, error)
	CreateWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error)
	UpdateWorkout(ctx context.Context, userID string, w models.Workout) (models.Workout, error)
	DeleteWorkout(ctx context.Context, userID, id string) error

	ListMeasurements(ctx context.Context, userID string) ([]models.Measurement, error)
	CreateMeasurement(ctx context.Context, userID string, m models.Measurement) (models.Measurement, error)
	UpdateMeasurement(ctx context.Context, userID string, m models.Measurement) (models.Measurement, error)
	DeleteMeasurement(ctx context.Context, userID, id string) error
}

// WorkoutHandler serves /api/workouts and /api/measurements.
type WorkoutHandler struct {
	Service WorkoutService
	Log     *zap.Logger
}

func (h *WorkoutHandler) ListWorkouts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListWorkouts(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateWorkout upserts on the client-chosen id so replays are harmless.
func (h *WorkoutHandler) CreateWorkout(w http.ResponseWriter, r *http.Request) {
	var in models.Workout
	if err := decode(w, r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := h.Service.CreateWorkout(r.Context(), middleware.GetUserIDFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *WorkoutHandler) UpdateWorkout(w http.ResponseWriter, r *http.Request) {
	var in models.Workout
	if err := decode(w, r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if id := chi.URLParam(r, "id"); in.ID != id {
		http.Error(w, "id in body does not match path", http.StatusBadRequest)
		return
	}
	out, err := h.Service.UpdateWorkout(r.Context(), middleware.GetUserIDFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WorkoutHandler) DeleteWorkout(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeleteWorkout(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkoutHandler) ListMeasurements(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListMeasurements(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *WorkoutHandler) CreateMeasurement(w http.ResponseWriter, r *http.Request) {
	var in models.Measurement
	if err := decode(w, r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out, err := h.Service.CreateMeasurement(r.Context(), middleware.GetUserIDFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *WorkoutHandler) UpdateMeasurement(w http.ResponseWriter, r *http.Request) {
	var in models.Measurement
	if err := decode(w, r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if id := chi.URLParam(r, "id"); in.ID != id {
		http.Error(w, "id in body does not match path", http.StatusBadRequest)
		return
	}
	out, err := h.Service.UpdateMeasurement(r.Context(), middleware.GetUserIDFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WorkoutHandler) DeleteMeasurement(w http.ResponseWriter, r *http.Request) {
	err := h.Service.DeleteMeasurement(r.Context(), middleware.GetUserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkoutHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, service.ErrIDTaken):
		http.Error(w, "id already in use", http.StatusConflict)
	default:
		if h.Log != nil {
			h.Log.Error("request failed", zap.Error(err))
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
