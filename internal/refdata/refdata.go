package refdata

import (
	"fmt"

	"github.com/spreadwatch/spreadwatch/internal/models"
)

// Registry holds the Exchange and TradingPair reference tables. It is built
// once at startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	exchanges map[string]models.Exchange
	pairs     map[string]models.TradingPair
	symbols   []string
}

// New validates the reference tables and builds the lookup registry. Fees are
// validated here, not at match time: a fee must be a fraction in [0, 1).
// Inactive rows are skipped.
func New(exchanges []models.Exchange, pairs []models.TradingPair) (*Registry, error) {
	r := &Registry{
		exchanges: make(map[string]models.Exchange, len(exchanges)),
		pairs:     make(map[string]models.TradingPair, len(pairs)),
	}

	for _, ex := range exchanges {
		if ex.Name == "" {
			return nil, fmt.Errorf("exchange with empty name")
		}
		if ex.Fee < 0 || ex.Fee >= 1 {
			return nil, fmt.Errorf("exchange %s: fee %v out of range [0, 1)", ex.Name, ex.Fee)
		}
		if !ex.Active {
			continue
		}
		if _, dup := r.exchanges[ex.Name]; dup {
			return nil, fmt.Errorf("duplicate exchange %s", ex.Name)
		}
		r.exchanges[ex.Name] = ex
	}

	for _, p := range pairs {
		if p.Symbol == "" {
			return nil, fmt.Errorf("trading pair with empty symbol")
		}
		if !p.Active {
			continue
		}
		if _, dup := r.pairs[p.Symbol]; dup {
			return nil, fmt.Errorf("duplicate trading pair %s", p.Symbol)
		}
		r.pairs[p.Symbol] = p
		r.symbols = append(r.symbols, p.Symbol)
	}

	return r, nil
}

// Exchange looks up an active exchange by name.
func (r *Registry) Exchange(name string) (models.Exchange, bool) {
	ex, ok := r.exchanges[name]
	return ex, ok
}

// Pair looks up an active trading pair by canonical symbol.
func (r *Registry) Pair(symbol string) (models.TradingPair, bool) {
	p, ok := r.pairs[symbol]
	return p, ok
}

// Symbols returns the canonical symbols of all active pairs, in load order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.symbols))
	copy(out, r.symbols)
	return out
}

// Fees returns the fractional fee per active exchange, as consumed by the
// matcher.
func (r *Registry) Fees() map[string]float64 {
	fees := make(map[string]float64, len(r.exchanges))
	for name, ex := range r.exchanges {
		fees[name] = ex.Fee
	}
	return fees
}

// Seed is the built-in reference set used when no database is configured.
func Seed() ([]models.Exchange, []models.TradingPair) {
	exchanges := []models.Exchange{
		{Name: "binance", Fee: 0.001, Active: true},
		{Name: "coinbase", Fee: 0.005, Active: true},
		{Name: "kraken", Fee: 0.0026, Active: true},
	}
	pairs := []models.TradingPair{
		{Symbol: "BTC_USD", Base: "BTC", Quote: "USD", Active: true},
		{Symbol: "ETH_USD", Base: "ETH", Quote: "USD", Active: true},
		{Symbol: "SOL_USD", Base: "SOL", Quote: "USD", Active: true},
	}
	return exchanges, pairs
}
