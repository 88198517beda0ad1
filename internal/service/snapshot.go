package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// OrderBook returns the pair's book. At the broadcast depth the cache is
// tried first, since it holds exactly what was last broadcast.
func (x *Exchange) OrderBook(ctx context.Context, pair string, depth int) (domain.BookUpdate, error) {
	m, err := x.market(pair)
	if err != nil {
		return domain.BookUpdate{}, err
	}
	if depth <= 0 {
		depth = x.cfg.BookDepth
	}

	if depth == x.cfg.BookDepth && x.cache != nil && !m.cacheStale.Load() {
		ub, err := x.cache.GetBook(ctx, m.pair)
		if err == nil && ub != nil {
			return *ub, nil
		}
		if err != nil {
			x.log.Warn("cache read failed", zap.String("pair", m.pair), zap.Error(err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return x.snapshot(m, depth), nil
}

// WarmCache overwrites whatever a previous process left in the cache with
// the current books.
func (x *Exchange) WarmCache(ctx context.Context) error {
	if x.cache == nil {
		return nil
	}
	for _, pair := range x.pairs {
		m := x.markets[pair]
		m.mu.Lock()
		update := x.snapshot(m, x.cfg.BookDepth)
		err := x.storeBook(ctx, m, &update)
		m.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}
