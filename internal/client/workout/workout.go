// Package workout manages the user's training log.
package workout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atinyakov/liftlog/internal/client/collection"
	"github.com/atinyakov/liftlog/internal/client/storage"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("invalid workout")

type Set struct {
	Reps   int     `json:"reps" validate:"gt=0"`
	Weight float64 `json:"weight" validate:"gte=0"`
}

type Exercise struct {
	Name string `json:"name" validate:"required"`
	Sets []Set  `json:"sets" validate:"dive"`
}

// Workout is one training session.
type Workout struct {
	ID        string     `json:"id"`
	Name      string     `json:"name" validate:"required,max=120"`
	StartedAt time.Time  `json:"started_at"`
	Exercises []Exercise `json:"exercises" validate:"dive"`
	Notes     string     `json:"notes,omitempty" validate:"max=2000"`

	// Pending is set while a change is queued for sync. Never sent.
	Pending bool `json:"-"`
}

func (w Workout) EntityID() string           { return w.ID }
func (w Workout) WithID(id string) Workout   { w.ID = id; return w }
func (w Workout) WithPending(p bool) Workout { w.Pending = p; return w }
func (w Workout) IsPending() bool            { return w.Pending }

// Volume is the total weight moved across every set.
func (w Workout) Volume() float64 {
	var v float64
	for _, e := range w.Exercises {
		for _, s := range e.Sets {
			v += float64(s.Reps) * s.Weight
		}
	}
	return v
}

// Service is the workout log. It persists through the API while signed in
// and to the local store otherwise.
type Service struct {
	items    *collection.Collection[Workout]
	validate *validator.Validate
	now      func() time.Time
}

// NewService returns a Service. auth decides which persistence mode applies
// at each call.
func NewService(api collection.API[Workout], store storage.Store, auth collection.Auth, log *zap.Logger, opts ...collection.Option) *Service {
	return &Service{
		items:    collection.New[Workout]("workouts", api, store, auth, log, opts...),
		validate: validator.New(),
		now:      time.Now,
	}
}

// Load refreshes the in-memory log from its current source.
func (s *Service) Load(ctx context.Context) {
	s.items.Load(ctx)
}

// List returns workouts, newest first.
func (s *Service) List() []Workout {
	out := s.items.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (s *Service) Get(id string) (Workout, bool) {
	return s.items.Get(id)
}

// Pending returns workouts with a change still waiting to sync.
func (s *Service) Pending() []Workout {
	return s.items.Pending()
}

// Start records a new, empty workout beginning now.
func (s *Service) Start(ctx context.Context, name string) (Workout, error) {
	return s.Create(ctx, Workout{Name: strings.TrimSpace(name)})
}

// Create validates and stores w. A zero StartedAt is set to now.
func (s *Service) Create(ctx context.Context, w Workout) (Workout, error) {
	if w.StartedAt.IsZero() {
		w.StartedAt = s.now().UTC().Truncate(time.Second)
	}
	if err := s.check(w); err != nil {
		return Workout{}, err
	}
	return s.items.Create(ctx, w)
}

// Rename changes the workout's name.
func (s *Service) Rename(ctx context.Context, id, name string) (Workout, error) {
	return s.edit(ctx, id, func(w *Workout) {
		w.Name = strings.TrimSpace(name)
	})
}

// SetNotes replaces the workout's free-form notes.
func (s *Service) SetNotes(ctx context.Context, id, notes string) (Workout, error) {
	return s.edit(ctx, id, func(w *Workout) {
		w.Notes = notes
	})
}

// AddSet appends a set to exercise, creating the exercise if needed.
func (s *Service) AddSet(ctx context.Context, id, exercise string, reps int, weight float64) (Workout, error) {
	exercise = strings.TrimSpace(exercise)
	return s.edit(ctx, id, func(w *Workout) {
		for i := range w.Exercises {
			if strings.EqualFold(w.Exercises[i].Name, exercise) {
				w.Exercises[i].Sets = append(w.Exercises[i].Sets, Set{Reps: reps, Weight: weight})
				return
			}
		}
		w.Exercises = append(w.Exercises, Exercise{Name: exercise, Sets: []Set{{Reps: reps, Weight: weight}}})
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.items.Delete(ctx, id)
}

func (s *Service) edit(ctx context.Context, id string, fn func(*Workout)) (Workout, error) {
	w, ok := s.items.Get(id)
	if !ok {
		return Workout{}, fmt.Errorf("workout %q: %w", id, collection.ErrNotFound)
	}
	w.Exercises = cloneExercises(w.Exercises)
	fn(&w)
	if err := s.check(w); err != nil {
		return Workout{}, err
	}
	return s.items.Update(ctx, w)
}

func (s *Service) check(w Workout) error {
	if err := s.validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func cloneExercises(in []Exercise) []Exercise {
	out := make([]Exercise, len(in))
	for i, e := range in {
		out[i] = Exercise{Name: e.Name, Sets: append([]Set(nil), e.Sets...)}
	}
	return out
}
