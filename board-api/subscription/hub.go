package subscription

import (
	"context"
	"sync"

	"prism-board/domain"
)

const subscriberBuffer = 8

// Hub fans board events out to the stream subscribers of each board. Slow
// subscribers miss events instead of blocking the broadcaster; they still
// receive later ones, which is enough to trigger a refetch.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.BoardEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan domain.BoardEvent]struct{})}
}

// Subscribe registers interest in boardID. The returned cancel func must be
// called once the subscriber is gone.
func (h *Hub) Subscribe(boardID string) (<-chan domain.BoardEvent, func()) {
	ch := make(chan domain.BoardEvent, subscriberBuffer)
	h.mu.Lock()
	set, ok := h.subs[boardID]
	if !ok {
		set = make(map[chan domain.BoardEvent]struct{})
		h.subs[boardID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(set, ch)
			if len(h.subs[boardID]) == 0 {
				delete(h.subs, boardID)
			}
			h.mu.Unlock()
		})
	}
}

// Broadcast delivers ev to every subscriber of its board.
func (h *Hub) Broadcast(ev domain.BoardEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.BoardID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Publish broadcasts locally. It lets a single instance run without Redis.
func (h *Hub) Publish(_ context.Context, ev domain.BoardEvent) error {
	h.Broadcast(ev)
	return nil
}

// Subscribers returns the number of subscribers of boardID.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[boardID])
}
