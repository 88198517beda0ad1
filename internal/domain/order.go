package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string
type OrderStatus string

const (
	Buy  Side = "buy"
	Sell Side = "sell"

	Open            OrderStatus = "open"
	PartiallyFilled OrderStatus = "partially_filled"
	Filled          OrderStatus = "filled"
	Cancelled       OrderStatus = "cancelled"
)

// DefaultTraderID is used when an order arrives without a trader.
const DefaultTraderID = "anonymous"

// ParseSide accepts "buy" and "sell" in any letter case.
func ParseSide(s string) (Side, bool) {
	switch {
	case strings.EqualFold(s, string(Buy)):
		return Buy, true
	case strings.EqualFold(s, string(Sell)):
		return Sell, true
	}
	return "", false
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

type Order struct {
	ID        string          `json:"order_id"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Remaining decimal.Decimal `json:"remaining_quantity"`
	TraderID  string          `json:"trader_id"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Live reports whether the order can still trade. Filled and cancelled
// orders are dead for good.
func (o *Order) Live() bool {
	return o.Status == Open || o.Status == PartiallyFilled
}

// Fill takes qty off the remaining quantity and moves the status forward.
func (o *Order) Fill(qty decimal.Decimal) {
	o.Remaining = o.Remaining.Sub(qty)
	if o.Remaining.Sign() <= 0 {
		o.Remaining = decimal.Zero
		o.Status = Filled
		return
	}
	o.Status = PartiallyFilled
}

// Cancel kills a live order. Dead orders keep their status.
func (o *Order) Cancel() {
	if !o.Live() {
		return
	}
	o.Remaining = decimal.Zero
	o.Status = Cancelled
}
