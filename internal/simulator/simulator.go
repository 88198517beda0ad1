// Package simulator keeps a demo book moving by submitting random limit
// orders around a base price.
package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/olyamironova/matching-engine/internal/core"
	"github.com/olyamironova/matching-engine/internal/service"
)

// OrderSender is the subset of service.Exchange the simulator drives.
type OrderSender interface {
	AddOrder(ctx context.Context, req service.OrderRequest) (core.Placement, error)
}

type Config struct {
	Pair        string
	TraderID    string
	MinInterval time.Duration
	MaxInterval time.Duration
	// Spread is the maximum distance from the base price.
	Spread     float64
	BasePrices map[string]float64
}

func DefaultConfig() Config {
	return Config{
		Pair:        "BTC/USD",
		TraderID:    "market_maker",
		MinInterval: 2 * time.Second,
		MaxInterval: 8 * time.Second,
		Spread:      1000,
		BasePrices:  map[string]float64{"BTC/USD": 45000},
	}
}

const (
	fallbackBasePrice = 3000
	minQuantity       = 0.1
	maxQuantity       = 2.0
)

type Simulator struct {
	cfg    Config
	sender OrderSender
	log    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New fills zero config fields from DefaultConfig. A nil rng is seeded from
// the clock.
func New(cfg Config, sender OrderSender, log *zap.Logger, rng *rand.Rand) *Simulator {
	def := DefaultConfig()
	if cfg.TraderID == "" {
		cfg.TraderID = def.TraderID
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.Spread <= 0 {
		cfg.Spread = def.Spread
	}
	if cfg.BasePrices == nil {
		cfg.BasePrices = def.BasePrices
	}
	prices := make(map[string]float64, len(cfg.BasePrices))
	for pair, p := range cfg.BasePrices {
		prices[service.NormalizePair(pair)] = p
	}
	cfg.BasePrices = prices
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{cfg: cfg, sender: sender, log: log, rng: rng}
}

// Run submits one order per random interval until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	s.log.Info("market simulator started",
		zap.String("pair", s.cfg.Pair),
		zap.Duration("min_interval", s.cfg.MinInterval),
		zap.Duration("max_interval", s.cfg.MaxInterval),
	)
	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("market simulator stopped")
			return
		case <-timer.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Warn("simulated order rejected", zap.Error(err))
			}
			timer.Reset(s.nextInterval())
		}
	}
}

// Tick submits a single random order.
func (s *Simulator) Tick(ctx context.Context) error {
	req := s.nextOrder()
	p, err := s.sender.AddOrder(ctx, req)
	if err != nil {
		return err
	}
	s.log.Debug("simulated order",
		zap.String("order_id", p.OrderID),
		zap.String("side", req.Side),
		zap.String("price", req.Price.String()),
		zap.String("quantity", req.Quantity.String()),
		zap.Int("trades", len(p.Trades)),
	)
	return nil
}

func (s *Simulator) basePrice() float64 {
	if p, ok := s.cfg.BasePrices[service.NormalizePair(s.cfg.Pair)]; ok {
		return p
	}
	return fallbackBasePrice
}

func (s *Simulator) nextOrder() service.OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	side := "buy"
	if s.rng.Intn(2) == 1 {
		side = "sell"
	}
	price := s.basePrice() + (s.rng.Float64()*2-1)*s.cfg.Spread
	qty := minQuantity + s.rng.Float64()*(maxQuantity-minQuantity)

	return service.OrderRequest{
		Pair:     s.cfg.Pair,
		Side:     side,
		Price:    decimal.NewFromFloat(price).Round(2),
		Quantity: decimal.NewFromFloat(qty).Round(4),
		TraderID: s.cfg.TraderID,
	}
}

func (s *Simulator) nextInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	span := s.cfg.MaxInterval - s.cfg.MinInterval
	if span <= 0 {
		return s.cfg.MinInterval
	}
	return s.cfg.MinInterval + time.Duration(s.rng.Int63n(int64(span)+1))
}
