package bitmex

import (
	"sync"

	"github.com/shopspring/decimal"

	"bitmex-trader/internal/core"
)

// PriceCache holds the last observed bid/ask per symbol. The market stream is
// the only writer; any goroutine may read. Entries are created on first
// observation and never removed, and a message carrying only one side leaves
// the other side untouched.
type PriceCache struct {
	mu     sync.RWMutex
	quotes map[string]core.Quote
}

func NewPriceCache() *PriceCache {
	return &PriceCache{quotes: make(map[string]core.Quote)}
}

func (p *PriceCache) apply(symbol string, bid, ask *decimal.Decimal) {
	if symbol == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.quotes[symbol]
	if bid != nil {
		q.Bid = *bid
		q.HasBid = true
	}
	if ask != nil {
		q.Ask = *ask
		q.HasAsk = true
	}
	p.quotes[symbol] = q
}

// Quote returns the cached quote for symbol. The second return reports
// whether the symbol has been observed at all.
func (p *PriceCache) Quote(symbol string) (core.Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[symbol]
	return q, ok
}

// Snapshot returns a copy of every cached quote.
func (p *PriceCache) Snapshot() map[string]core.Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]core.Quote, len(p.quotes))
	for symbol, q := range p.quotes {
		out[symbol] = q
	}
	return out
}
