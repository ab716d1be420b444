// Package collection implements the dual-mode persistence every domain
// service uses: through the API while signed in, through the local store
// otherwise, with the in-memory copy always serving reads.
package collection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/atinyakov/liftlog/internal/client/offline"
	"github.com/atinyakov/liftlog/internal/client/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned for an id that is not in the collection.
var ErrNotFound = errors.New("not found")

// Entity is implemented by the value types stored in a Collection.
type Entity[T any] interface {
	EntityID() string
	WithID(id string) T
	// WithPending marks a copy as applied locally but not yet confirmed by
	// the server.
	WithPending(pending bool) T
	IsPending() bool
}

// API is the remote side of a collection.
type API[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, item T) (T, error)
	Delete(ctx context.Context, id string) error
}

// Auth tells the collection which mode it is in.
type Auth interface {
	IsAuthenticated() bool
}

// Outbox reports mutations that are still waiting to reach the server.
// *offline.Queue implements it.
type Outbox interface {
	PendingFor(id string) (method string, ok bool)
}

// Option configures a Collection.
type Option func(*settings)

type settings struct {
	outbox Outbox
}

// WithOutbox lets Load tell entities whose mutation is still queued from
// ones the server already settled.
func WithOutbox(o Outbox) Option {
	return func(s *settings) { s.outbox = o }
}

// Collection holds one entity type in memory.
type Collection[T Entity[T]] struct {
	name   string
	api    API[T]
	store  storage.Store
	auth   Auth
	log    *zap.Logger
	newID  func() string
	outbox Outbox

	mu    sync.RWMutex
	items []T
}

// New returns an empty collection. Signed out, it is mirrored under
// "collection.<name>"; signed in, entities waiting for the offline queue are
// kept under "collection.<name>.pending" so they survive a restart.
func New[T Entity[T]](name string, api API[T], store storage.Store, auth Auth, log *zap.Logger, opts ...Option) *Collection[T] {
	var set settings
	for _, opt := range opts {
		opt(&set)
	}
	return &Collection[T]{
		name:   name,
		api:    api,
		store:  store,
		auth:   auth,
		log:    log.With(zap.String("collection", name)),
		newID:  uuid.NewString,
		outbox: set.outbox,
	}
}

func (c *Collection[T]) key() string {
	return "collection." + c.name
}

func (c *Collection[T]) pendingKey() string {
	return c.key() + ".pending"
}

// Load fills the collection. Signed in, it takes the server's list and lays
// the locally pending entities over it; if the server cannot be read it keeps
// what it has, or falls back to the local mirror plus the pending entities,
// without returning an error. Signed out, it reads the mirror.
func (c *Collection[T]) Load(ctx context.Context) {
	if !c.auth.IsAuthenticated() {
		c.set(c.readMirror())
		return
	}

	c.mu.RLock()
	local := pendingOf(c.items)
	empty := len(c.items) == 0
	c.mu.RUnlock()
	local = union(local, c.storedPending())

	items, err := c.api.List(ctx)
	if err != nil {
		c.log.Warn("remote load failed, serving cached data", zap.Error(err))
		if empty {
			c.set(union(c.readMirror(), local))
		}
		return
	}

	merged := c.merge(items, local)
	c.set(merged)
	c.savePending(merged)
}

// merge returns the server's list with the user's unconfirmed changes kept
// on top. Without an outbox a pending entity survives only while the server
// has no copy of it.
func (c *Collection[T]) merge(server, pending []T) []T {
	local := make(map[string]T, len(pending))
	for _, p := range pending {
		local[p.EntityID()] = p
	}

	out := make([]T, 0, len(server)+len(pending))
	seen := make(map[string]bool, len(server))
	for _, it := range server {
		id := it.EntityID()
		seen[id] = true
		method, queued := c.queued(id)
		if queued && method == http.MethodDelete {
			continue
		}
		if p, ok := local[id]; ok && queued {
			out = append(out, p)
			continue
		}
		out = append(out, it)
	}
	for _, p := range pending {
		id := p.EntityID()
		if seen[id] {
			continue
		}
		if c.outbox != nil {
			if method, queued := c.queued(id); !queued || method == http.MethodDelete {
				c.log.Debug("pending entity settled without a server copy", zap.String("id", id))
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func (c *Collection[T]) queued(id string) (string, bool) {
	if c.outbox == nil {
		return "", false
	}
	return c.outbox.PendingFor(id)
}

func (c *Collection[T]) set(items []T) {
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
}

func (c *Collection[T]) readMirror() []T {
	var items []T
	if _, err := c.store.Get(c.key(), &items); err != nil {
		c.log.Error("failed to read local mirror", zap.Error(err))
	}
	return items
}

// storedPending reads the pending entities saved by an earlier run. The
// pending flag is not serialised, so it is restored here.
func (c *Collection[T]) storedPending() []T {
	var items []T
	if _, err := c.store.Get(c.pendingKey(), &items); err != nil {
		c.log.Error("failed to read pending entities", zap.Error(err))
	}
	for i := range items {
		items[i] = items[i].WithPending(true)
	}
	return items
}

func (c *Collection[T]) savePending(items []T) {
	pending := pendingOf(items)
	var err error
	if len(pending) == 0 {
		err = c.store.Remove(c.pendingKey())
	} else {
		err = c.store.Set(c.pendingKey(), pending)
	}
	if err != nil {
		c.log.Error("failed to write pending entities", zap.Error(err))
	}
}

// List returns a copy of the collection.
func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

// Get returns the entity with id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := indexOf(c.items, id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Create adds item. A missing id is filled with a client-generated one so a
// create replayed later keeps its identity.
func (c *Collection[T]) Create(ctx context.Context, item T) (T, error) {
	if item.EntityID() == "" {
		item = item.WithID(c.newID())
	}

	if !c.auth.IsAuthenticated() {
		c.mutate(func(items []T) []T { return append(items, item) })
		return item, nil
	}

	created, err := c.api.Create(ctx, item)
	switch {
	case err == nil:
		c.mutate(func(items []T) []T { return append(items, created) })
		return created, nil
	case errors.Is(err, offline.ErrQueued):
		pending := item.WithPending(true)
		c.mutate(func(items []T) []T { return append(items, pending) })
		return pending, nil
	default:
		var zero T
		return zero, fmt.Errorf("create %s: %w", c.name, err)
	}
}

// Update replaces the entity with the same id.
func (c *Collection[T]) Update(ctx context.Context, item T) (T, error) {
	id := item.EntityID()
	if _, ok := c.Get(id); !ok {
		var zero T
		return zero, fmt.Errorf("update %s %q: %w", c.name, id, ErrNotFound)
	}

	if !c.auth.IsAuthenticated() {
		c.replace(id, item)
		return item, nil
	}

	updated, err := c.api.Update(ctx, id, item)
	switch {
	case err == nil:
		c.replace(id, updated)
		return updated, nil
	case errors.Is(err, offline.ErrQueued):
		pending := item.WithPending(true)
		c.replace(id, pending)
		return pending, nil
	default:
		var zero T
		return zero, fmt.Errorf("update %s %q: %w", c.name, id, err)
	}
}

// Delete removes the entity with id.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if _, ok := c.Get(id); !ok {
		return fmt.Errorf("delete %s %q: %w", c.name, id, ErrNotFound)
	}

	if c.auth.IsAuthenticated() {
		if err := c.api.Delete(ctx, id); err != nil && !errors.Is(err, offline.ErrQueued) {
			return fmt.Errorf("delete %s %q: %w", c.name, id, err)
		}
	}
	c.mutate(func(items []T) []T {
		if i := indexOf(items, id); i >= 0 {
			return append(items[:i], items[i+1:]...)
		}
		return items
	})
	return nil
}

// Pending returns the entities applied locally but not yet confirmed.
func (c *Collection[T]) Pending() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pendingOf(c.items)
}

func (c *Collection[T]) replace(id string, item T) {
	c.mutate(func(items []T) []T {
		if i := indexOf(items, id); i >= 0 {
			items[i] = item
		}
		return items
	})
}

// mutate applies fn to the in-memory slice. Signed out, it rewrites the
// whole mirror; signed in, it rewrites the pending set.
func (c *Collection[T]) mutate(fn func([]T) []T) {
	c.mu.Lock()
	c.items = fn(c.items)
	snapshot := append([]T(nil), c.items...)
	c.mu.Unlock()

	if c.auth.IsAuthenticated() {
		c.savePending(snapshot)
		return
	}
	if err := c.store.Set(c.key(), snapshot); err != nil {
		c.log.Error("failed to write local mirror", zap.Error(err))
	}
}

func indexOf[T Entity[T]](items []T, id string) int {
	for i, it := range items {
		if it.EntityID() == id {
			return i
		}
	}
	return -1
}

func pendingOf[T Entity[T]](items []T) []T {
	var out []T
	for _, it := range items {
		if it.IsPending() {
			out = append(out, it)
		}
	}
	return out
}

// union returns a followed by the entities of b whose id is not in a.
func union[T Entity[T]](a, b []T) []T {
	out := append([]T(nil), a...)
	for _, it := range b {
		if indexOf(out, it.EntityID()) < 0 {
			out = append(out, it)
		}
	}
	return out
}
