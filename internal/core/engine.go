package core

import (
	"container/heap"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultBookDepth   = 20
	DefaultTradesLimit = 50

	// MaxScale and MaxDigits bound the decimals AddOrder accepts. Comparing
	// decimals rescales them to a common exponent, so an unbounded exponent
	// would build huge integers under the engine lock.
	MaxScale  = 18
	MaxDigits = 38
)

// Engine is the matching engine for one instrument. A single mutex guards
// the whole instance; book queries compact the queues and take it too.
type Engine struct {
	mu sync.Mutex

	now   func() time.Time
	newID func() string

	bids   *orderQueue
	asks   *orderQueue
	orders map[string]*domain.Order
	trades deque.Deque[domain.Trade]
	seq    uint64

	lastPrice decimal.NullDecimal
	high      decimal.NullDecimal
	low       decimal.NullDecimal
	volume    decimal.Decimal
}

type Option func(*Engine)

// WithClock replaces time.Now as the source of order and trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces uuid.NewString for order and trade ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:    time.Now,
		newID:  uuid.NewString,
		bids:   newOrderQueue(true),
		asks:   newOrderQueue(false),
		orders: make(map[string]*domain.Order),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Placement is what AddOrder hands back: the new order id, the trades the
// order produced right away and what is left of it.
type Placement struct {
	OrderID   string
	Trades    []domain.Trade
	Remaining decimal.Decimal
}

func validate(side domain.Side, price, quantity decimal.Decimal) error {
	if !side.Valid() {
		return domain.ErrInvalidSide
	}
	if !price.IsPositive() {
		return domain.ErrInvalidPrice
	}
	if !inRange(price) {
		return domain.ErrPriceOutOfRange
	}
	if !quantity.IsPositive() {
		return domain.ErrInvalidQuantity
	}
	if !inRange(quantity) {
		return domain.ErrQuantityOutOfRange
	}
	return nil
}

// inRange reports whether d has at most MaxScale fractional digits and at
// most MaxDigits digits overall.
func inRange(d decimal.Decimal) bool {
	exp := int64(d.Exponent())
	if exp < -MaxScale {
		return false
	}
	digits := int64(d.NumDigits())
	if exp > 0 {
		digits += exp
	}
	return digits <= MaxDigits
}

// AddOrder rests a limit order and runs matching. Invalid input returns a
// *domain.ValidationError and leaves the engine untouched.
func (e *Engine) AddOrder(side domain.Side, price, quantity decimal.Decimal, traderID string) (Placement, error) {
	if err := validate(side, price, quantity); err != nil {
		return Placement{}, err
	}
	if traderID == "" {
		traderID = domain.DefaultTraderID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	o := &domain.Order{
		ID:        e.newID(),
		Side:      side,
		Price:     price,
		Quantity:  quantity,
		Remaining: quantity,
		TraderID:  traderID,
		Status:    domain.Open,
		CreatedAt: e.now(),
	}
	e.seq++
	e.orders[o.ID] = o
	if side == domain.Buy {
		heap.Push(e.bids, &entry{order: o, seq: e.seq})
	} else {
		heap.Push(e.asks, &entry{order: o, seq: e.seq})
	}

	trades := e.match()

	return Placement{
		OrderID:   o.ID,
		Trades:    trades,
		Remaining: o.Remaining,
	}, nil
}

// CancelOrder marks the order dead. It stays in its queue until matching or
// a book query reaches it. Unknown ids return false.
func (e *Engine) CancelOrder(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return false
	}
	o.Cancel()
	return true
}

// Order returns a copy of any order the engine has admitted.
func (e *Engine) Order(orderID string) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// GetOrderBook aggregates live orders into at most depth levels per side,
// best prices first. Dead entries are purged along the way.
func (e *Engine) GetOrderBook(depth int) (bids, asks []domain.PriceLevel) {
	if depth <= 0 {
		depth = DefaultBookDepth
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.bids.compact()
	e.asks.compact()
	return e.bids.levels(depth), e.asks.levels(depth)
}

// GetRecentTrades returns up to limit trades, newest first.
func (e *Engine) GetRecentTrades(limit int) []domain.Trade {
	if limit <= 0 {
		limit = DefaultTradesLimit
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	n := min(limit, e.trades.Len())
	out := make([]domain.Trade, n)
	last := e.trades.Len() - 1
	for i := range n {
		out[i] = e.trades.At(last - i)
	}
	return out
}

func (e *Engine) GetMarketStats() domain.MarketStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := 0
	for _, o := range e.orders {
		if o.Live() {
			active++
		}
	}
	return domain.MarketStats{
		LastPrice:    e.lastPrice,
		Volume24h:    e.volume,
		High24h:      e.high,
		Low24h:       e.low,
		TotalTrades:  e.trades.Len(),
		ActiveOrders: active,
	}
}
