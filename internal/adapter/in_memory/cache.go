package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

type Cache struct {
	mu    sync.Mutex
	store map[string]*domain.BookUpdate
}

var _ port.BookCache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{store: make(map[string]*domain.BookUpdate)}
}

func (c *Cache) SetBook(ctx context.Context, update *domain.BookUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[update.Pair] = cloneUpdate(update)
	return nil
}

func (c *Cache) GetBook(ctx context.Context, pair string) (*domain.BookUpdate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ub, ok := c.store[pair]
	if !ok {
		return nil, nil
	}
	return cloneUpdate(ub), nil
}

func (c *Cache) Invalidate(ctx context.Context, pair string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, pair)
	return nil
}

func cloneUpdate(u *domain.BookUpdate) *domain.BookUpdate {
	cp := *u
	cp.Bids = append([]domain.PriceLevel{}, u.Bids...)
	cp.Asks = append([]domain.PriceLevel{}, u.Asks...)
	return &cp
}
