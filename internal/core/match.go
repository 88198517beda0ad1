package core

import (
	"container/heap"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// match crosses the book until the best bid is below the best ask. The
// seller's price is the execution price. Callers hold e.mu.
func (e *Engine) match() []domain.Trade {
	var executed []domain.Trade

	for e.bids.Len() > 0 && e.asks.Len() > 0 {
		bid := e.bids.peek()
		if !bid.order.Live() {
			heap.Pop(e.bids)
			continue
		}
		ask := e.asks.peek()
		if !ask.order.Live() {
			heap.Pop(e.asks)
			continue
		}

		buy, sell := bid.order, ask.order
		if buy.Price.LessThan(sell.Price) {
			break
		}

		price := sell.Price
		qty := decimal.Min(buy.Remaining, sell.Remaining)

		tr := domain.Trade{
			ID:          e.newID(),
			BuyerID:     buy.TraderID,
			SellerID:    sell.TraderID,
			Price:       price,
			Quantity:    qty,
			Timestamp:   e.now(),
			BuyOrderID:  buy.ID,
			SellOrderID: sell.ID,
		}
		e.trades.PushBack(tr)
		executed = append(executed, tr)
		e.record(price, qty)

		buy.Fill(qty)
		sell.Fill(qty)
		if !buy.Live() {
			heap.Pop(e.bids)
		}
		if !sell.Live() {
			heap.Pop(e.asks)
		}
	}

	return executed
}

func (e *Engine) record(price, qty decimal.Decimal) {
	e.lastPrice = decimal.NewNullDecimal(price)
	e.volume = e.volume.Add(qty)
	if !e.high.Valid || price.GreaterThan(e.high.Decimal) {
		e.high = decimal.NewNullDecimal(price)
	}
	if !e.low.Valid || price.LessThan(e.low.Decimal) {
		e.low = decimal.NewNullDecimal(price)
	}
}
