package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/spreadwatch/spreadwatch/internal/models"
)

// Archive is the durable side of the quote path: an append/upsert log keyed by
// (exchange, pair, observed_at), plus the reference tables and a retention
// sweep. Writes are best-effort from the core's point of view; a failed write
// never affects in-memory freshness.
type Archive interface {
	SaveQuote(ctx context.Context, q models.Quote) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	LoadExchanges(ctx context.Context) ([]models.Exchange, error)
	LoadTradingPairs(ctx context.Context) ([]models.TradingPair, error)
	Close() error
}

// Postgres implements Archive on database/sql with lib/pq.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool and verifies it with a short ping.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) SaveQuote(ctx context.Context, q models.Quote) error {
	const query = `INSERT INTO quotes (exchange, pair, last_price, bid, ask, volume_24h, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (exchange, pair, observed_at) DO UPDATE
		SET last_price = EXCLUDED.last_price,
		    bid = EXCLUDED.bid,
		    ask = EXCLUDED.ask,
		    volume_24h = EXCLUDED.volume_24h`

	_, err := p.db.ExecContext(ctx, query,
		q.Exchange, q.Pair, q.LastPrice, q.Bid, q.Ask, q.Volume24h, q.ObservedAt)
	if err != nil {
		return fmt.Errorf("save quote %s/%s: %w", q.Exchange, q.Pair, err)
	}
	return nil
}

func (p *Postgres) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM quotes WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge quotes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge quotes: rows affected: %w", err)
	}
	return n, nil
}

func (p *Postgres) LoadExchanges(ctx context.Context) ([]models.Exchange, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, fee, active FROM exchanges ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("load exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []models.Exchange
	for rows.Next() {
		var ex models.Exchange
		if err := rows.Scan(&ex.Name, &ex.Fee, &ex.Active); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

func (p *Postgres) LoadTradingPairs(ctx context.Context) ([]models.TradingPair, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT symbol, base, quote, active FROM trading_pairs ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("load trading pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.TradingPair
	for rows.Next() {
		var tp models.TradingPair
		if err := rows.Scan(&tp.Symbol, &tp.Base, &tp.Quote, &tp.Active); err != nil {
			return nil, fmt.Errorf("scan trading pair: %w", err)
		}
		pairs = append(pairs, tp)
	}
	return pairs, rows.Err()
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
