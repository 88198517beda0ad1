package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel aggregates the live resting quantity at one exact price.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// BookUpdate is the notification forwarded to subscribers after a mutation.
type BookUpdate struct {
	Pair      string       `json:"pair"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// MarketStats holds counters updated on every trade.
//
// The 24h fields are lifetime values since the engine started; nothing
// rolls them over.
type MarketStats struct {
	LastPrice    decimal.NullDecimal `json:"last_price"`
	Volume24h    decimal.Decimal     `json:"volume_24h"`
	High24h      decimal.NullDecimal `json:"high_24h"`
	Low24h       decimal.NullDecimal `json:"low_24h"`
	TotalTrades  int                 `json:"total_trades"`
	ActiveOrders int                 `json:"active_orders"`
}
