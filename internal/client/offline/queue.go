// Package offline records mutations that could not reach the API and replays
// them, oldest first, once connectivity returns.
package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atinyakov/liftlog/internal/client/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	queueKey           = "offline.queue"
	defaultMaxAttempts = 25
)

var (
	// ErrQueued is wrapped into the error returned for a mutation that was
	// captured for later replay.
	ErrQueued = errors.New("queued for sync")
	// ErrReplayInProgress is returned by Replay while another pass runs.
	ErrReplayInProgress = errors.New("replay already in progress")
)

// Mutation is one captured request.
type Mutation struct {
	ID       string          `json:"id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body,omitempty"`
	QueuedAt time.Time       `json:"queued_at"`
	Attempts int             `json:"attempts,omitempty"`
}

// ReplayResult summarises one replay pass.
type ReplayResult struct {
	Synced    int
	Discarded int
	Retained  int
	Dropped   int
}

// Doer sends a request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Queue is a FIFO of mutations persisted under a single store key and
// rewritten in full on every change.
type Queue struct {
	mu      sync.Mutex
	entries []Mutation

	store       storage.Store
	client      Doer
	notifier    Notifier
	log         *zap.Logger
	maxAttempts int
	now         func() time.Time
	ready       func() bool
	onReplayed  []func(ReplayResult)
	onEnqueued  []func(Mutation)

	replaying atomic.Bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxAttempts drops an entry after n failed replays. Zero keeps entries
// forever.
func WithMaxAttempts(n int) QueueOption {
	return func(q *Queue) {
		if n >= 0 {
			q.maxAttempts = n
		}
	}
}

// WithReplayGate stops a pass as soon as ready reports false, e.g. once the
// session is gone. The entries not yet settled stay queued as they are.
func WithReplayGate(ready func() bool) QueueOption {
	return func(q *Queue) { q.ready = ready }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue restores the queue from store. client replays entries and should
// carry credentials but must not capture failures back into this queue.
func NewQueue(store storage.Store, client Doer, notifier Notifier, log *zap.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		store:       store,
		client:      client,
		notifier:    notifier,
		log:         log,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.notifier == nil {
		q.notifier = NotifierFunc(func(string) {})
	}

	var entries []Mutation
	if _, err := store.Get(queueKey, &entries); err != nil {
		log.Error("failed to load offline queue", zap.Error(err))
	}
	q.entries = entries
	return q
}

// OnReplayed registers fn to run after every replay pass.
func (q *Queue) OnReplayed(fn func(ReplayResult)) {
	q.mu.Lock()
	q.onReplayed = append(q.onReplayed, fn)
	q.mu.Unlock()
}

// OnEnqueued registers fn to run after every Enqueue.
func (q *Queue) OnEnqueued(fn func(Mutation)) {
	q.mu.Lock()
	q.onEnqueued = append(q.onEnqueued, fn)
	q.mu.Unlock()
}

// Enqueue appends a mutation and persists the queue. A persistence failure
// is logged; the entry still lives in memory for this process.
func (q *Queue) Enqueue(method, url string, body []byte) Mutation {
	m := Mutation{
		ID:       uuid.NewString(),
		Method:   method,
		URL:      url,
		QueuedAt: q.now().UTC(),
	}
	if len(body) > 0 {
		m.Body = json.RawMessage(append([]byte(nil), body...))
	}

	q.mu.Lock()
	q.entries = append(q.entries, m)
	q.persistLocked()
	hooks := slices.Clone(q.onEnqueued)
	q.mu.Unlock()

	q.log.Info("mutation queued", zap.String("id", m.ID), zap.String("method", method), zap.String("url", url))
	for _, fn := range hooks {
		fn(m)
	}
	return m
}

// Entries returns a copy of the queue in replay order.
func (q *Queue) Entries() []Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Mutation(nil), q.entries...)
}

// PendingFor returns the method of the newest queued mutation for the entity
// id. An entry targets id when the last path segment of its URL is id, or
// when its body is a JSON object whose "id" is id.
func (q *Queue) PendingFor(id string) (string, bool) {
	if id == "" {
		return "", false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := len(q.entries) - 1; i >= 0; i-- {
		if targets(q.entries[i], id) {
			return q.entries[i].Method, true
		}
	}
	return "", false
}

func targets(m Mutation, id string) bool {
	if u, err := url.Parse(m.URL); err == nil && path.Base(u.Path) == id {
		return true
	}
	if len(m.Body) == 0 {
		return false
	}
	var body struct {
		ID string `json:"id"`
	}
	return json.Unmarshal(m.Body, &body) == nil && body.ID == id
}

// Len returns the number of queued mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Replay re-sends a snapshot of the queue in enqueue order. Entries added
// during the pass wait for the next one. Each entry is settled on its own:
// success and 4xx remove it, 5xx and transport failures keep it. The pass is
// not cut short by ctx being cancelled, but it stops when the replay gate
// closes: a 401 answered after the session ended keeps its entry, and the
// rest of the snapshot is left untouched for the next signed-in pass.
func (q *Queue) Replay(ctx context.Context) (ReplayResult, error) {
	if !q.replaying.CompareAndSwap(false, true) {
		return ReplayResult{}, ErrReplayInProgress
	}
	defer q.replaying.Store(false)

	ctx = context.WithoutCancel(ctx)
	snapshot := q.Entries()
	var res ReplayResult

pass:
	for i, m := range snapshot {
		if !q.open() {
			res.Retained += len(snapshot) - i
			q.log.Info("replay stopped, session unavailable", zap.Int("kept", len(snapshot)-i))
			break
		}
		code, err := q.send(ctx, m)
		switch {
		case err == nil && code == http.StatusUnauthorized && !q.open():
			res.Retained += len(snapshot) - i
			q.log.Info("replay stopped, session ended during pass", zap.Int("kept", len(snapshot)-i))
			break pass
		case err == nil && code < 400:
			q.remove(m.ID)
			res.Synced++
		case err == nil && code < 500:
			q.remove(m.ID)
			res.Discarded++
			q.log.Warn("discarding queued mutation rejected by server",
				zap.String("id", m.ID), zap.String("method", m.Method), zap.String("url", m.URL), zap.Int("status", code))
		default:
			if q.retain(m.ID) {
				res.Retained++
			} else {
				res.Dropped++
			}
			q.log.Info("queued mutation kept for a later pass",
				zap.String("id", m.ID), zap.Int("status", code), zap.Error(err))
		}
	}

	if len(snapshot) > 0 {
		q.log.Info("replay pass finished",
			zap.Int("synced", res.Synced), zap.Int("discarded", res.Discarded),
			zap.Int("retained", res.Retained), zap.Int("dropped", res.Dropped))
	}
	if res.Synced > 0 {
		q.notifier.Notify(syncedMessage(res.Synced))
	}

	q.mu.Lock()
	hooks := slices.Clone(q.onReplayed)
	q.mu.Unlock()
	for _, fn := range hooks {
		fn(res)
	}
	return res, nil
}

func (q *Queue) open() bool {
	return q.ready == nil || q.ready()
}

func (q *Queue) send(ctx context.Context, m Mutation) (int, error) {
	var body io.Reader
	if len(m.Body) > 0 {
		body = bytes.NewReader(m.Body)
	}
	req, err := http.NewRequestWithContext(ctx, m.Method, m.URL, body)
	if err != nil {
		return 0, fmt.Errorf("build replay request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func (q *Queue) remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.persistLocked()
			return
		}
	}
}

// retain bumps the attempt count of id and reports whether it stays queued.
func (q *Queue) retain(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID != id {
			continue
		}
		q.entries[i].Attempts++
		if q.maxAttempts > 0 && q.entries[i].Attempts >= q.maxAttempts {
			q.log.Warn("dropping queued mutation after too many attempts",
				zap.String("id", id), zap.String("url", q.entries[i].URL), zap.Int("attempts", q.entries[i].Attempts))
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.persistLocked()
			return false
		}
		q.persistLocked()
		return true
	}
	return false
}

func (q *Queue) persistLocked() {
	if err := q.store.Set(queueKey, q.entries); err != nil {
		q.log.Error("failed to persist offline queue", zap.Error(err))
	}
}

func syncedMessage(n int) string {
	if n == 1 {
		return "1 action synced"
	}
	return fmt.Sprintf("%d actions synced", n)
}
