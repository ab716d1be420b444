// Package measurement tracks body measurements such as weight or waist.
package measurement

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

var ErrInvalid = errors.New("invalid measurement")

type Measurement struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind" validate:"required,max=40"`
	Value   float64   `json:"value" validate:"gt=0"`
	Unit    string    `json:"unit" validate:"required,max=10"`
	TakenAt time.Time `json:"taken_at"`

	Pending bool `json:"-"`
}

func (m Measurement) EntityID() string               { return m.ID }
func (m Measurement) WithID(id string) Measurement   { m.ID = id; return m }
func (m Measurement) WithPending(p bool) Measurement { m.Pending = p; return m }
func (m Measurement) IsPending() bool                { return m.Pending }

type Service struct {
	items    *collection.Collection[Measurement]
	validate *validator.Validate
	now      func() time.Time
}

func NewService(api collection.API[Measurement], store storage.Store, auth collection.Auth, log *zap.Logger, opts ...collection.Option) *Service {
	return &Service{
		items:    collection.New[Measurement]("measurements", api, store, auth, log, opts...),
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Service) Load(ctx context.Context) {
	s.items.Load(ctx)
}

// Record stores a new measurement taken now. Kind is case-insensitive.
func (s *Service) Record(ctx context.Context, kind string, value float64, unit string) (Measurement, error) {
	m := Measurement{
		Kind:    strings.ToLower(strings.TrimSpace(kind)),
		Value:   value,
		Unit:    strings.TrimSpace(unit),
		TakenAt: s.now().UTC().Truncate(time.Second),
	}
	if err := s.validate.Struct(m); err != nil {
		return Measurement{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return s.items.Create(ctx, m)
}

// List returns measurements of kind, oldest first. An empty kind matches all.
func (s *Service) List(kind string) []Measurement {
	kind = strings.ToLower(strings.TrimSpace(kind))
	var out []Measurement
	for _, m := range s.items.List() {
		if kind == "" || m.Kind == kind {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TakenAt.Before(out[j].TakenAt)
	})
	return out
}

// Latest returns the most recent measurement of kind.
func (s *Service) Latest(kind string) (Measurement, bool) {
	list := s.List(kind)
	if len(list) == 0 {
		return Measurement{}, false
	}
	return list[len(list)-1], true
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.items.Delete(ctx, id)
}
