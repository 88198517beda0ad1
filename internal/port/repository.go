package port

import (
	"context"

	"github.com/olyamironova/matching-engine/internal/domain"
)

// TradeArchive is a write-behind copy of executed trades. The engine's own
// trade log stays the source of truth.
type TradeArchive interface {
	SaveTrades(ctx context.Context, pair string, trades []domain.Trade) error
	LoadTradesForOrder(ctx context.Context, orderID string) ([]domain.Trade, error)
}
