package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionlab/stratcalc/internal/cache"
)

// CachingProvider wraps another Provider with TTL caches for quotes, chains,
// and per-expiration snapshots. Construct one per process and share it; the
// underlying stores are safe for concurrent use.
type CachingProvider struct {
	inner     Provider
	quotes    *cache.Store[Quote]
	chains    *cache.Store[Chain]
	snapshots *cache.Store[[]Contract]
	log       zerolog.Logger
}

// NewCachingProvider wraps inner with caches holding entries for ttl, capped
// at maxEntries per kind.
func NewCachingProvider(inner Provider, ttl time.Duration, maxEntries int, log zerolog.Logger) *CachingProvider {
	return &CachingProvider{
		inner:     inner,
		quotes:    cache.NewStore[Quote](ttl, maxEntries),
		chains:    cache.NewStore[Chain](ttl, maxEntries),
		snapshots: cache.NewStore[[]Contract](ttl, maxEntries),
		log:       log.With().Str("provider", "cached").Logger(),
	}
}

// Secondary unwraps to the inner provider.
func (c *CachingProvider) Secondary() Provider {
	return c.inner
}

// GetStockQuote serves from cache when fresh.
func (c *CachingProvider) GetStockQuote(ctx context.Context, symbol string) (Quote, error) {
	if q, ok := c.quotes.Get(symbol); ok {
		c.log.Trace().Str("symbol", symbol).Msg("quote cache hit")
		return q, nil
	}
	q, err := c.inner.GetStockQuote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	c.quotes.Set(symbol, q)
	return q, nil
}

// GetChain serves from cache when fresh.
func (c *CachingProvider) GetChain(ctx context.Context, symbol string) (Chain, error) {
	if ch, ok := c.chains.Get(symbol); ok {
		c.log.Trace().Str("symbol", symbol).Msg("chain cache hit")
		return ch, nil
	}
	ch, err := c.inner.GetChain(ctx, symbol)
	if err != nil {
		return Chain{}, err
	}
	c.chains.Set(symbol, ch)
	return ch, nil
}

// GetChainSnapshot serves from cache when fresh.
func (c *CachingProvider) GetChainSnapshot(ctx context.Context, symbol string, expiration time.Time) ([]Contract, error) {
	key := symbol + "|" + expiration.Format("2006-01-02")
	if cs, ok := c.snapshots.Get(key); ok {
		return cs, nil
	}
	cs, err := c.inner.GetChainSnapshot(ctx, symbol, expiration)
	if err != nil {
		return nil, err
	}
	c.snapshots.Set(key, cs)
	return cs, nil
}

// GetDailyBars passes through when the inner provider serves bars; bars back
// slow-moving history, so caching them buys little.
func (c *CachingProvider) GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error) {
	if bp, ok := c.inner.(BarProvider); ok {
		return bp.GetDailyBars(ctx, symbol, from, to)
	}
	return nil, nil
}

// Invalidate drops every cached entry for the symbol.
func (c *CachingProvider) Invalidate(symbol string) {
	c.quotes.Delete(symbol)
	c.chains.Delete(symbol)
	// snapshot keys embed the expiration, purge is the simple correct move
	c.snapshots.Purge()
}
