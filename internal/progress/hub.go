// Package progress implements the in-memory crawl progress hub. Crawls
// publish snapshots keyed by module, observers subscribe and receive the
// latest state plus subsequent updates. Nothing here is persisted.
package progress

import (
	"sync"
	"time"

	"github.com/mbeckner/civicrawl/internal/domain"
)

// DefaultGraceDelay is how long a terminal snapshot stays readable after
// the crawl ends, so observers connecting just after completion still see
// the final state.
const DefaultGraceDelay = 30 * time.Second

const subscriberBuffer = 16

// Hub fans crawl progress out to subscribers. Safe for concurrent use.
type Hub struct {
	mu          sync.Mutex
	latest      map[string]domain.ProgressSnapshot
	subscribers map[string]map[chan domain.ProgressSnapshot]struct{}
	cleanups    map[string]*time.Timer
	graceDelay  time.Duration
}

// NewHub creates a hub with the default terminal grace delay.
func NewHub() *Hub {
	return NewHubWithGrace(DefaultGraceDelay)
}

// NewHubWithGrace creates a hub with an explicit grace delay. Tests use
// short delays here.
func NewHubWithGrace(grace time.Duration) *Hub {
	return &Hub{
		latest:      make(map[string]domain.ProgressSnapshot),
		subscribers: make(map[string]map[chan domain.ProgressSnapshot]struct{}),
		cleanups:    make(map[string]*time.Timer),
		graceDelay:  grace,
	}
}

// Publish stores the snapshot as the module's latest state and notifies
// subscribers. Slow subscribers miss intermediate updates rather than
// blocking the publisher, but a terminal snapshot always lands: the SSE
// stream closes on it, so dropping it would strand the client. A
// terminal snapshot schedules cleanup of the stored state after the
// grace delay.
func (h *Hub) Publish(snap domain.ProgressSnapshot) {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// A new run supersedes any pending cleanup from the previous one.
	if timer, ok := h.cleanups[snap.ModuleKey]; ok {
		timer.Stop()
		delete(h.cleanups, snap.ModuleKey)
	}

	h.latest[snap.ModuleKey] = snap

	for ch := range h.subscribers[snap.ModuleKey] {
		if snap.Terminal() {
			deliverTerminal(ch, snap)
			continue
		}
		select {
		case ch <- snap:
		default:
		}
	}

	if snap.Terminal() {
		key := snap.ModuleKey
		h.cleanups[key] = time.AfterFunc(h.graceDelay, func() {
			h.expire(key)
		})
	}
}

// deliverTerminal evicts the oldest buffered snapshot until the terminal
// one fits. Publish is the only sender, so the loop terminates as soon as
// a slot frees up.
func deliverTerminal(ch chan domain.ProgressSnapshot, snap domain.ProgressSnapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (h *Hub) expire(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latest, key)
	delete(h.cleanups, key)
}

// Latest returns the module's current snapshot, if any.
func (h *Hub) Latest(moduleKey string) (domain.ProgressSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap, ok := h.latest[moduleKey]
	return snap, ok
}

// Subscribe registers an observer for a module. The returned channel
// immediately carries the latest snapshot when one exists. The caller
// must invoke the cancel function when done.
func (h *Hub) Subscribe(moduleKey string) (<-chan domain.ProgressSnapshot, func()) {
	ch := make(chan domain.ProgressSnapshot, subscriberBuffer)

	h.mu.Lock()
	if h.subscribers[moduleKey] == nil {
		h.subscribers[moduleKey] = make(map[chan domain.ProgressSnapshot]struct{})
	}
	h.subscribers[moduleKey][ch] = struct{}{}

	if snap, ok := h.latest[moduleKey]; ok {
		ch <- snap
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subscribers[moduleKey]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, moduleKey)
			}
		}
	}
	return ch, cancel
}
