// Package events fans task progress out to live subscribers.
package events

import (
	"sync"

	"github.com/veranemoloko/media-downloader/internal/domain"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// SnapshotFunc returns the current event for a task id, or false when the
// task is unknown.
type SnapshotFunc func(id string) (domain.ProgressEvent, bool)

// Hub keeps one subscriber set per task id. Snapshots are read under the hub
// lock so a subscriber never sees an older state after a newer one.
type Hub struct {
	mu       sync.Mutex
	snapshot SnapshotFunc
	subs     map[string]map[*Subscription]struct{}
	buffer   int
}

// Subscription is one live listener for a task.
type Subscription struct {
	hub    *Hub
	taskID string
	ch     chan domain.ProgressEvent
	once   sync.Once
}

// NewHub creates a Hub backed by snapshot.
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot: snapshot,
		subs:     make(map[string]map[*Subscription]struct{}),
		buffer:   DefaultBuffer,
	}
}

// Subscribe registers a listener for id. The current snapshot is queued
// before the subscription becomes visible to Broadcast, so the first event
// received always reflects the state at subscribe time. Unknown ids yield
// an event with status unknown.
func (h *Hub) Subscribe(id string) *Subscription {
	sub := &Subscription{
		hub:    h,
		taskID: id,
		ch:     make(chan domain.ProgressEvent, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev, ok := h.snapshot(id)
	if !ok {
		ev = domain.UnknownEvent()
	}
	sub.ch <- ev

	set, exists := h.subs[id]
	if !exists {
		set = make(map[*Subscription]struct{})
		h.subs[id] = set
	}
	set[sub] = struct{}{}

	return sub
}

// Broadcast sends the current snapshot of id to every subscriber. It never
// blocks: a subscriber with a full queue loses its oldest pending event, so a
// slow reader may skip intermediate states. What it does receive stays in
// order and ends with the latest snapshot.
func (h *Hub) Broadcast(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[id]
	if len(set) == 0 {
		return
	}

	ev, ok := h.snapshot(id)
	if !ok {
		return
	}

	for sub := range set {
		sub.offer(ev)
	}
}

// Subscribers returns the number of live subscribers for id.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[sub.taskID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.taskID)
	}
}

// offer is called with the hub lock held, so it is the only sender.
func (s *Subscription) offer(ev domain.ProgressEvent) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// C returns the event channel. It is never closed; stop reading after Close.
func (s *Subscription) C() <-chan domain.ProgressEvent {
	return s.ch
}

// TaskID returns the id the subscription listens to.
func (s *Subscription) TaskID() string {
	return s.taskID
}

// Close removes the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}
