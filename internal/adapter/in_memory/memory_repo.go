package in_memory

import (
	"context"
	"sync"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

// MemoryRepo archives trades in process, indexed by both order ids.
type MemoryRepo struct {
	mu      sync.Mutex
	byOrder map[string][]domain.Trade
}

var _ port.TradeArchive = (*MemoryRepo)(nil)

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byOrder: make(map[string][]domain.Trade),
	}
}

func (r *MemoryRepo) SaveTrades(ctx context.Context, pair string, trades []domain.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range trades {
		r.byOrder[t.BuyOrderID] = append(r.byOrder[t.BuyOrderID], t)
		r.byOrder[t.SellOrderID] = append(r.byOrder[t.SellOrderID], t)
	}
	return nil
}

func (r *MemoryRepo) LoadTradesForOrder(ctx context.Context, orderID string) ([]domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Trade(nil), r.byOrder[orderID]...), nil
}
