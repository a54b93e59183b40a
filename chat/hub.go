// Package chat carries the unread-message-count subscription primitive the
// deal screens hang their chat badge on. The hub is the in-process half of the
// store contract: counts are pushed into it by whatever ingests messages, and
// each subscriber observes the live count for one (thread, actor) pair.
package chat

import "sync"

type subKey struct {
	threadID string
	actorID  string
}

// Hub fans unread-count updates out to subscribers. Callbacks run on the
// publisher's goroutine; subscribers that need to do real work should hand off.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[subKey]map[int]func(count int)
	counts map[subKey]int
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[subKey]map[int]func(int)),
		counts: make(map[subKey]int),
	}
}

// Subscribe registers a callback for the unread count of one thread as seen by
// one actor. The current count is delivered immediately, then on every change.
// The returned function unsubscribes; calling it more than once is harmless.
func (h *Hub) Subscribe(threadID, actorID string, fn func(count int)) func() {
	key := subKey{threadID: threadID, actorID: actorID}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]func(int))
	}
	h.subs[key][id] = fn
	current := h.counts[key]
	h.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
		})
	}
}

// Publish records the new unread count and notifies subscribers. Publishing an
// unchanged count is a no-op.
func (h *Hub) Publish(threadID, actorID string, count int) {
	key := subKey{threadID: threadID, actorID: actorID}

	h.mu.Lock()
	if prev, ok := h.counts[key]; ok && prev == count {
		h.mu.Unlock()
		return
	}
	h.counts[key] = count
	fns := make([]func(int), 0, len(h.subs[key]))
	for _, fn := range h.subs[key] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(count)
	}
}
