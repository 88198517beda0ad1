package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrUnknownPair = errors.New("unknown pair")

type Config struct {
	Pairs       []string
	DefaultPair string
	BookDepth   int
}

// Exchange runs one matching engine per trading pair and forwards a fresh
// book to the cache and publishers after every mutation.
type Exchange struct {
	cfg     Config
	markets map[string]*market
	pairs   []string

	archive   port.TradeArchive
	cache     port.BookCache
	pubs      []port.Publisher
	engineOpt []core.Option
	now       func() time.Time
	log       *zap.Logger
}

// market serialises mutation and broadcast for one pair, so that updates
// leave in the order the mutations happened.
type market struct {
	mu     sync.Mutex
	pair   string
	engine *core.Engine
	// cacheStale is set while the cache may hold an older book than the
	// engine; reads bypass the cache until a SetBook succeeds again.
	cacheStale atomic.Bool
}

type Option func(*Exchange)

func WithArchive(a port.TradeArchive) Option { return func(x *Exchange) { x.archive = a } }

func WithCache(c port.BookCache) Option { return func(x *Exchange) { x.cache = c } }

func WithPublishers(p ...port.Publisher) Option {
	return func(x *Exchange) { x.pubs = append(x.pubs, p...) }
}

func WithEngineOptions(opts ...core.Option) Option {
	return func(x *Exchange) { x.engineOpt = append(x.engineOpt, opts...) }
}

func WithClock(now func() time.Time) Option { return func(x *Exchange) { x.now = now } }

func New(cfg Config, log *zap.Logger, opts ...Option) (*Exchange, error) {
	if len(cfg.Pairs) == 0 {
		return nil, errors.New("service: no trading pairs configured")
	}
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = core.DefaultBookDepth
	}
	if log == nil {
		log = zap.NewNop()
	}

	x := &Exchange{
		cfg:     cfg,
		markets: make(map[string]*market, len(cfg.Pairs)),
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(x)
	}

	for _, p := range cfg.Pairs {
		pair := NormalizePair(p)
		if _, dup := x.markets[pair]; dup {
			return nil, fmt.Errorf("service: duplicate pair %q", p)
		}
		x.markets[pair] = &market{pair: pair, engine: core.NewEngine(x.engineOpt...)}
		x.pairs = append(x.pairs, pair)
	}

	if cfg.DefaultPair == "" {
		x.cfg.DefaultPair = x.pairs[0]
	} else {
		x.cfg.DefaultPair = NormalizePair(cfg.DefaultPair)
	}
	if _, ok := x.markets[x.cfg.DefaultPair]; !ok {
		return nil, fmt.Errorf("service: default pair %q is not configured", cfg.DefaultPair)
	}
	return x, nil
}

// NormalizePair upper-cases a pair and accepts "-" for "/" so that pairs fit
// in a URL path segment.
func NormalizePair(p string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(p), "-", "/"))
}

func (x *Exchange) Pairs() []string { return append([]string(nil), x.pairs...) }

func (x *Exchange) DefaultPair() string { return x.cfg.DefaultPair }

func (x *Exchange) BookDepth() int { return x.cfg.BookDepth }

func (x *Exchange) market(pair string) (*market, error) {
	if pair == "" {
		pair = x.cfg.DefaultPair
	}
	m, ok := x.markets[NormalizePair(pair)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPair, pair)
	}
	return m, nil
}

// ResolvePair returns the configured name for pair, empty meaning the
// default pair.
func (x *Exchange) ResolvePair(pair string) (string, error) {
	m, err := x.market(pair)
	if err != nil {
		return "", err
	}
	return m.pair, nil
}

type OrderRequest struct {
	Pair     string
	Side     string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	TraderID string
}

// AddOrder submits a limit order to the pair's engine, archives the trades it
// produced and broadcasts the new book.
func (x *Exchange) AddOrder(ctx context.Context, req OrderRequest) (core.Placement, error) {
	m, err := x.market(req.Pair)
	if err != nil {
		return core.Placement{}, err
	}
	side, ok := domain.ParseSide(req.Side)
	if !ok {
		return core.Placement{}, domain.ErrInvalidSide
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.engine.AddOrder(side, req.Price, req.Quantity, req.TraderID)
	if err != nil {
		return core.Placement{}, err
	}
	x.log.Debug("order added",
		zap.String("pair", m.pair),
		zap.String("order_id", p.OrderID),
		zap.String("side", string(side)),
		zap.String("price", req.Price.String()),
		zap.String("quantity", req.Quantity.String()),
		zap.Int("trades", len(p.Trades)),
	)

	if len(p.Trades) > 0 && x.archive != nil {
		if err := x.archive.SaveTrades(ctx, m.pair, p.Trades); err != nil {
			x.log.Error("archive trades failed", zap.String("pair", m.pair), zap.Error(err))
		}
	}
	x.broadcast(ctx, m)
	return p, nil
}

// CancelOrder reports false for ids the pair's engine does not know.
func (x *Exchange) CancelOrder(ctx context.Context, pair, orderID string) (bool, error) {
	m, err := x.market(pair)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.engine.CancelOrder(orderID) {
		return false, nil
	}
	x.log.Debug("order cancelled", zap.String("pair", m.pair), zap.String("order_id", orderID))
	x.broadcast(ctx, m)
	return true, nil
}

// broadcast runs with m.mu held. Failures are logged; the engine state is
// already final.
func (x *Exchange) broadcast(ctx context.Context, m *market) {
	update := x.snapshot(m, x.cfg.BookDepth)

	if x.cache != nil {
		x.storeBook(ctx, m, &update)
	}
	for _, p := range x.pubs {
		if err := p.Publish(ctx, update); err != nil {
			x.log.Warn("publish book failed", zap.String("pair", m.pair), zap.Error(err))
		}
	}
}

// storeBook writes update to the cache. On failure the cached entry is
// dropped so that no older book is served in its place.
func (x *Exchange) storeBook(ctx context.Context, m *market, update *domain.BookUpdate) error {
	err := x.cache.SetBook(ctx, update)
	if err == nil {
		m.cacheStale.Store(false)
		return nil
	}
	m.cacheStale.Store(true)
	x.log.Warn("cache book failed", zap.String("pair", m.pair), zap.Error(err))
	if ierr := x.cache.Invalidate(ctx, m.pair); ierr != nil {
		x.log.Warn("invalidate cached book failed", zap.String("pair", m.pair), zap.Error(ierr))
	}
	return err
}

func (x *Exchange) snapshot(m *market, depth int) domain.BookUpdate {
	bids, asks := m.engine.GetOrderBook(depth)
	return domain.BookUpdate{
		Pair:      m.pair,
		Bids:      bids,
		Asks:      asks,
		Timestamp: x.now(),
	}
}

func (x *Exchange) RecentTrades(pair string, limit int) ([]domain.Trade, error) {
	m, err := x.market(pair)
	if err != nil {
		return nil, err
	}
	return m.engine.GetRecentTrades(limit), nil
}

func (x *Exchange) MarketStats(pair string) (domain.MarketStats, error) {
	m, err := x.market(pair)
	if err != nil {
		return domain.MarketStats{}, err
	}
	return m.engine.GetMarketStats(), nil
}

// Order looks an order up in the pair's engine.
func (x *Exchange) Order(pair, orderID string) (domain.Order, bool, error) {
	m, err := x.market(pair)
	if err != nil {
		return domain.Order{}, false, err
	}
	o, ok := m.engine.Order(orderID)
	return o, ok, nil
}

// OrderTrades reads an order's fills back from the trade archive.
func (x *Exchange) OrderTrades(ctx context.Context, orderID string) ([]domain.Trade, error) {
	if x.archive == nil {
		return []domain.Trade{}, nil
	}
	trades, err := x.archive.LoadTradesForOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load trades for %s: %w", orderID, err)
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}
