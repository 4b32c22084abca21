package bitmex

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceCacheMergesSides(t *testing.T) {
	cache := NewPriceCache()

	bid := decimal.NewFromInt(10)
	cache.apply("XBTUSD", &bid, nil)

	q, ok := cache.Quote("XBTUSD")
	if !ok {
		t.Fatal("Quote() not found after bid update")
	}
	if !q.HasBid || q.HasAsk {
		t.Fatalf("HasBid = %v, HasAsk = %v, want true/false", q.HasBid, q.HasAsk)
	}

	ask := decimal.NewFromInt(12)
	cache.apply("XBTUSD", nil, &ask)

	q, _ = cache.Quote("XBTUSD")
	if !q.HasBid || !q.HasAsk {
		t.Fatalf("HasBid = %v, HasAsk = %v, want both true", q.HasBid, q.HasAsk)
	}
	if !q.Bid.Equal(bid) {
		t.Fatalf("Bid = %s, want %s", q.Bid, bid)
	}
	if !q.Ask.Equal(ask) {
		t.Fatalf("Ask = %s, want %s", q.Ask, ask)
	}
}

func TestPriceCacheLastWriteWins(t *testing.T) {
	cache := NewPriceCache()
	first := decimal.NewFromInt(10)
	second := decimal.NewFromInt(11)
	cache.apply("XBTUSD", &first, nil)
	cache.apply("XBTUSD", &second, nil)

	q, _ := cache.Quote("XBTUSD")
	if !q.Bid.Equal(second) {
		t.Fatalf("Bid = %s, want %s", q.Bid, second)
	}
}

func TestPriceCacheUnknownSymbol(t *testing.T) {
	cache := NewPriceCache()
	if _, ok := cache.Quote("ETHUSD"); ok {
		t.Fatal("Quote() reported a symbol the feed never observed")
	}
}

func TestPriceCacheIgnoresEmptySymbol(t *testing.T) {
	cache := NewPriceCache()
	bid := decimal.NewFromInt(10)
	cache.apply("", &bid, nil)
	if len(cache.Snapshot()) != 0 {
		t.Fatal("empty symbol created a cache entry")
	}
}

func TestPriceCacheSnapshotIsCopy(t *testing.T) {
	cache := NewPriceCache()
	bid := decimal.NewFromInt(10)
	cache.apply("XBTUSD", &bid, nil)

	snap := cache.Snapshot()
	delete(snap, "XBTUSD")
	if _, ok := cache.Quote("XBTUSD"); !ok {
		t.Fatal("mutating the snapshot changed the cache")
	}
}

func TestPriceCacheConcurrentAccess(t *testing.T) {
	cache := NewPriceCache()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(n int64) {
			defer wg.Done()
			for j := int64(0); j < 100; j++ {
				bid := decimal.NewFromInt(n*100 + j)
				cache.apply("XBTUSD", &bid, nil)
			}
		}(int64(i))
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Quote("XBTUSD")
				cache.Snapshot()
			}
		}()
	}
	wg.Wait()
}
