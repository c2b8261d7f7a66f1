package matcher

import (
	"sort"
	"time"

	"github.com/spreadwatch/spreadwatch/internal/models"
)

const (
	DefaultMinProfitPct = 0.1
	DefaultLimit        = 50
)

// Options control one match pass.
type Options struct {
	MinProfitPct float64   // strict lower bound on fee-adjusted profit
	Limit        int       // result cap, applied after sorting; <= 0 means DefaultLimit
	Now          time.Time // zero means time.Now(); injected by tests
}

// Result is the matcher's output plus the inputs used to produce it.
type Result struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	MinProfitPct  float64              `json:"min_profit_pct"`
	PairsScanned  int                  `json:"pairs_scanned"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// Match scans a freshness-bounded snapshot for cross-exchange opportunities.
// For each pair it keeps two running extrema (cheapest ask, richest bid) over
// the snapshot's first-seen order, so the pass is linear in the snapshot and
// ties resolve to the earliest-seen quote. Fees are assumed validated at
// reference-data load.
func Match(quotes []models.Quote, fees map[string]float64, opts Options) Result {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	type extrema struct {
		bestBuy  *models.Quote // minimum ask
		bestSell *models.Quote // maximum bid
	}

	byPair := make(map[string]*extrema)
	var pairOrder []string

	for i := range quotes {
		q := &quotes[i]
		ex, ok := byPair[q.Pair]
		if !ok {
			ex = &extrema{}
			byPair[q.Pair] = ex
			pairOrder = append(pairOrder, q.Pair)
		}
		// Strict comparisons keep the first-seen quote on ties.
		if q.Ask > 0 && (ex.bestBuy == nil || q.Ask < ex.bestBuy.Ask) {
			ex.bestBuy = q
		}
		if q.Bid > 0 && (ex.bestSell == nil || q.Bid > ex.bestSell.Bid) {
			ex.bestSell = q
		}
	}

	var opps []models.Opportunity
	for _, pair := range pairOrder {
		ex := byPair[pair]
		if ex.bestBuy == nil || ex.bestSell == nil {
			continue
		}
		if ex.bestBuy.Exchange == ex.bestSell.Exchange {
			continue
		}

		buy, sell := ex.bestBuy, ex.bestSell
		buyFee := fees[buy.Exchange]
		sellFee := fees[sell.Exchange]

		buyCost := buy.Ask * (1 + buyFee)
		sellProceeds := sell.Bid * (1 - sellFee)

		spreadPct := (sell.Bid - buy.Ask) / buy.Ask * 100
		profitPct := (sellProceeds - buyCost) / buyCost * 100

		if profitPct <= opts.MinProfitPct {
			continue
		}

		age := now.Sub(buy.ObservedAt)
		if sellAge := now.Sub(sell.ObservedAt); sellAge > age {
			age = sellAge
		}

		opps = append(opps, models.Opportunity{
			Pair:         pair,
			BuyExchange:  buy.Exchange,
			SellExchange: sell.Exchange,
			BuyPrice:     buy.Ask,
			SellPrice:    sell.Bid,
			SpreadPct:    spreadPct,
			ProfitPct:    profitPct,
			MaxQuoteAge:  age,
		})
	}

	// Stable sort keeps pair first-seen order for equal profits, so repeated
	// passes over the same snapshot return identical lists.
	sort.SliceStable(opps, func(i, j int) bool { return opps[i].ProfitPct > opps[j].ProfitPct })

	if len(opps) > opts.Limit {
		opps = opps[:opts.Limit]
	}

	return Result{
		Opportunities: opps,
		MinProfitPct:  opts.MinProfitPct,
		PairsScanned:  len(pairOrder),
		GeneratedAt:   now,
	}
}
