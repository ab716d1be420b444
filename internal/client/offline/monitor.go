package offline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultProbeInterval = 10 * time.Second
	probeTimeout         = 3 * time.Second
)

// Prober checks whether the API can be reached.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor watches connectivity and triggers replays: on the first successful
// probe when the queue is not empty, on every offline to online transition,
// and again after a backoff while a previous pass left entries behind. A
// mutation captured by the queue counts as having seen the API go offline,
// so the next successful probe replays it even if no probe failed.
type Monitor struct {
	prober   Prober
	queue    *Queue
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time
	ready    func() bool

	online  atomic.Bool
	trigger chan struct{}

	mu        sync.Mutex
	checked   bool
	failures  int
	nextRetry time.Time
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithReadiness holds replays back while ready reports false, e.g. while
// signed out, so queued entries are not answered with 401 and discarded.
func WithReadiness(ready func() bool) MonitorOption {
	return func(m *Monitor) {
		m.ready = ready
	}
}

// NewMonitor returns a Monitor probing every interval (default 10s).
func NewMonitor(prober Prober, queue *Queue, log *zap.Logger, interval time.Duration, opts ...MonitorOption) *Monitor {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	m := &Monitor{
		prober:   prober,
		queue:    queue,
		log:      log,
		interval: interval,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if queue != nil {
		queue.OnEnqueued(func(Mutation) { m.online.Store(false) })
	}
	return m
}

// Online reports the result of the last probe.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Trigger asks the running monitor for a replay pass as soon as possible.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Start runs the monitor loop in a goroutine until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			m.Check(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-m.trigger:
				m.force(ctx)
			}
		}
	}()
}

// Check probes once and replays when a trigger condition holds.
func (m *Monitor) Check(ctx context.Context) {
	m.check(ctx)
}

// check reports whether it ran a replay pass.
func (m *Monitor) check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := m.prober.Probe(probeCtx)
	cancel()
	online := err == nil
	wasOnline := m.online.Swap(online)

	m.mu.Lock()
	first := !m.checked
	m.checked = true
	retryDue := m.failures > 0 && !m.now().Before(m.nextRetry)
	m.mu.Unlock()

	if !online {
		if wasOnline || first {
			m.log.Info("api unreachable", zap.Error(err))
		}
		return false
	}
	if !wasOnline && !first {
		m.log.Info("api reachable again")
	}
	if (!wasOnline || retryDue) && m.pending() {
		m.replay(ctx)
		return true
	}
	return false
}

// force probes first so a trigger right after a captured mutation still
// sees the API's current state.
func (m *Monitor) force(ctx context.Context) {
	if m.check(ctx) || !m.online.Load() || !m.pending() {
		return
	}
	m.replay(ctx)
}

func (m *Monitor) pending() bool {
	if m.ready != nil && !m.ready() {
		return false
	}
	return m.queue.Len() > 0
}

func (m *Monitor) replay(ctx context.Context) {
	res, err := m.queue.Replay(ctx)
	if errors.Is(err, ErrReplayInProgress) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if res.Retained > 0 {
		m.failures++
		m.nextRetry = m.now().Add(backoffDelay(m.failures))
		return
	}
	m.failures = 0
	m.nextRetry = time.Time{}
}
