package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

const defaultBuffer = 16

// Hub fans book updates out to in-process subscribers. A subscriber that
// falls behind loses updates instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	buffer  int
	dropped atomic.Int64
}

type subscriber struct {
	ch chan domain.BookUpdate
}

var _ port.Publisher = (*Hub)(nil)

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers for updates of one pair. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(pair string) (<-chan domain.BookUpdate, func()) {
	s := &subscriber{ch: make(chan domain.BookUpdate, h.buffer)}

	h.mu.Lock()
	if h.subs[pair] == nil {
		h.subs[pair] = make(map[*subscriber]struct{})
	}
	h.subs[pair][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[pair], s)
			if len(h.subs[pair]) == 0 {
				delete(h.subs, pair)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

func (h *Hub) Publish(ctx context.Context, update domain.BookUpdate) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[update.Pair] {
		select {
		case s.ch <- update:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of subscribers of a pair.
func (h *Hub) Subscribers(pair string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[pair])
}

// Dropped returns how many updates slow subscribers missed.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
