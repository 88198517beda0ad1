package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
)

var _ port.TradeArchive = (*PgRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
  id            TEXT PRIMARY KEY,
  pair          TEXT NOT NULL,
  buyer_id      TEXT NOT NULL,
  seller_id     TEXT NOT NULL,
  price         NUMERIC NOT NULL,
  quantity      NUMERIC NOT NULL,
  buy_order_id  TEXT NOT NULL,
  sell_order_id TEXT NOT NULL,
  executed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_buy_order_idx ON trades (buy_order_id);
CREATE INDEX IF NOT EXISTS trades_sell_order_idx ON trades (sell_order_id);
`

type PgRepo struct {
	pool *pgxpool.Pool
}

// call Close when finish to work with database.
func NewPgRepo(ctx context.Context, dsn string) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &PgRepo{pool: pool}, nil
}

func (p *PgRepo) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// EnsureSchema creates the trades table when it is missing.
func (p *PgRepo) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}

// SaveTrades writes a batch of trades in one transaction. Replays of the
// same trade id are ignored.
func (p *PgRepo) SaveTrades(ctx context.Context, pair string, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return withTx(ctx, p.pool, func(tx pgx.Tx) error {
		for _, t := range trades {
			_, err := tx.Exec(ctx, `
INSERT INTO trades(id, pair, buyer_id, seller_id, price, quantity, buy_order_id, sell_order_id, executed_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING
`, t.ID, pair, t.BuyerID, t.SellerID, t.Price, t.Quantity, t.BuyOrderID, t.SellOrderID, t.Timestamp)
			if err != nil {
				return fmt.Errorf("pg: insert trade %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// LoadTradesForOrder returns the trades an order took part in, oldest first.
func (p *PgRepo) LoadTradesForOrder(ctx context.Context, orderID string) ([]domain.Trade, error) {
	if orderID == "" {
		return nil, errors.New("pg: empty order id")
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, buyer_id, seller_id, price, quantity, buy_order_id, sell_order_id, executed_at
FROM trades
WHERE buy_order_id = $1 OR sell_order_id = $1
ORDER BY executed_at ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.BuyerID, &t.SellerID, &t.Price, &t.Quantity, &t.BuyOrderID, &t.SellOrderID, &t.Timestamp); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
