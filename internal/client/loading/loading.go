// Package loading tracks how many requests are in flight and exposes that as
// a single "is anything loading" signal.
package loading

import (
	"net/http"
	"sync"
)

// Tracker is a reference count clamped at zero.
type Tracker struct {
	mu        sync.Mutex
	count     int
	listeners []func(loading bool)
}

// NewTracker returns an idle Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Increment records the start of a request.
func (t *Tracker) Increment() {
	t.mu.Lock()
	t.count++
	changed := t.count == 1
	listeners := t.listeners
	t.mu.Unlock()

	if changed {
		notify(listeners, true)
	}
}

// Decrement records the end of a request. At zero it does nothing, so an
// unmatched Decrement cannot make the next Increment look idle.
func (t *Tracker) Decrement() {
	t.mu.Lock()
	if t.count == 0 {
		t.mu.Unlock()
		return
	}
	t.count--
	changed := t.count == 0
	listeners := t.listeners
	t.mu.Unlock()

	if changed {
		notify(listeners, false)
	}
}

// IsLoading reports whether any request is in flight.
func (t *Tracker) IsLoading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count > 0
}

// Count returns the number of in-flight requests.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Subscribe registers fn to be called on every idle/loading transition.
// fn runs on the goroutine that caused the transition.
func (t *Tracker) Subscribe(fn func(loading bool)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func notify(listeners []func(bool), loading bool) {
	for _, fn := range listeners {
		fn(loading)
	}
}

// Transport counts every round trip on Tracker. The count is released when
// RoundTrip returns, whether it succeeded, failed, was cancelled or panicked.
type Transport struct {
	Base    http.RoundTripper
	Tracker *Tracker
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.Tracker.Increment()
	defer t.Tracker.Decrement()
	return t.base().RoundTrip(req)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
