package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	stockPricesKey  = "stockPrices"
	sparklinePoints = 7
)

// cachedPrice is the per-symbol entry kept under stockPrices in local storage.
type cachedPrice struct {
	Price         *float64   `json:"price"`
	Change        *float64   `json:"change"`
	PercentChange *float64   `json:"percentChange"`
	LastUpdated   *time.Time `json:"lastUpdated"`
}

type PollerOptions struct {
	BatchSize  int
	BatchDelay time.Duration
	// Fallback serves candles when the quote source has none.
	Fallback CandleSource
	// Rand drives the synthetic sparklines. A nil value seeds from the clock.
	Rand *rand.Rand
}

// QuotePoller keeps the quote table of the fixed stock list fresh. Fetches
// go out in batches separated by a fixed delay to stay under the upstream
// rate limit; a failed fetch keeps the last known values.
type QuotePoller struct {
	source   QuoteSource
	fallback CandleSource
	stocks   []StockInfo
	storage  *LocalStorage
	hub      *EventHub
	logger   *zap.Logger

	batchSize  int
	batchDelay time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	refreshMu sync.Mutex
	mu        sync.RWMutex
	quotes    map[string]*Quote
	listeners []func(map[string]Quote)
}

func NewQuotePoller(source QuoteSource, stocks []StockInfo, storage *LocalStorage, hub *EventHub, logger *zap.Logger, opts PollerOptions) *QuotePoller {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}

	p := &QuotePoller{
		source:     source,
		fallback:   opts.Fallback,
		stocks:     stocks,
		storage:    storage,
		hub:        hub,
		logger:     logger.Named("poller"),
		batchSize:  opts.BatchSize,
		batchDelay: opts.BatchDelay,
		rng:        opts.Rand,
		quotes:     make(map[string]*Quote, len(stocks)),
	}

	for _, s := range stocks {
		p.quotes[s.Symbol] = &Quote{Symbol: s.Symbol, Name: s.Name}
	}
	p.loadCache()
	return p
}

// loadCache seeds the table from the stored prices so it is populated before
// the first fetch completes.
func (p *QuotePoller) loadCache() {
	if p.storage == nil {
		return
	}
	stored := map[string]cachedPrice{}
	if _, err := p.storage.GetItem(stockPricesKey, &stored); err != nil {
		p.logger.Warn("ignoring unreadable price cache", zap.Error(err))
		return
	}
	for symbol, c := range stored {
		q, ok := p.quotes[symbol]
		if !ok {
			continue
		}
		q.Price = c.Price
		q.Change = c.Change
		q.PercentChange = c.PercentChange
		q.LastUpdated = c.LastUpdated
	}
}

func (p *QuotePoller) saveCache() {
	if p.storage == nil {
		return
	}
	p.mu.RLock()
	stored := make(map[string]cachedPrice, len(p.quotes))
	for symbol, q := range p.quotes {
		stored[symbol] = cachedPrice{
			Price:         q.Price,
			Change:        q.Change,
			PercentChange: q.PercentChange,
			LastUpdated:   q.LastUpdated,
		}
	}
	p.mu.RUnlock()

	if err := p.storage.SetItem(stockPricesKey, stored); err != nil {
		p.logger.Error("failed to save price cache", zap.Error(err))
	}
}

// OnRefresh registers fn to receive the table after every completed refresh.
func (p *QuotePoller) OnRefresh(fn func(map[string]Quote)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Quotes returns the table in stock list order.
func (p *QuotePoller) Quotes() []Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Quote, 0, len(p.stocks))
	for _, s := range p.stocks {
		out = append(out, copyQuote(p.quotes[s.Symbol]))
	}
	return out
}

func (p *QuotePoller) Quote(symbol string) (Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[normalizeSymbol(symbol)]
	if !ok {
		return Quote{}, false
	}
	return copyQuote(q), true
}

func (p *QuotePoller) quoteMap() map[string]Quote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Quote, len(p.quotes))
	for symbol, q := range p.quotes {
		out[symbol] = copyQuote(q)
	}
	return out
}

// Refresh fetches every symbol once. withSparklines also rebuilds the 7-day
// sparklines, which the table only needs on the first load. Only one refresh
// runs at a time; a concurrent call returns immediately.
func (p *QuotePoller) Refresh(ctx context.Context, withSparklines bool) error {
	if !p.refreshMu.TryLock() {
		p.logger.Debug("refresh already running")
		return nil
	}
	defer p.refreshMu.Unlock()

	start := time.Now()
	updated, failed := 0, 0

	for i := 0; i < len(p.stocks); i += p.batchSize {
		end := i + p.batchSize
		if end > len(p.stocks) {
			end = len(p.stocks)
		}
		batch := p.stocks[i:end]

		var wg sync.WaitGroup
		var countMu sync.Mutex
		for _, stock := range batch {
			wg.Add(1)
			go func(stock StockInfo) {
				defer wg.Done()
				ok := p.refreshOne(ctx, stock.Symbol, withSparklines)
				countMu.Lock()
				if ok {
					updated++
				} else {
					failed++
				}
				countMu.Unlock()
			}(stock)
		}
		wg.Wait()

		if end < len(p.stocks) {
			if err := waitFor(ctx, p.batchDelay); err != nil {
				p.saveCache()
				return fmt.Errorf("refresh interrupted after %d symbols: %w", end, err)
			}
		}
	}

	p.saveCache()
	p.logger.Info("quote refresh completed",
		zap.Int("updated", updated), zap.Int("failed", failed), zap.Duration("took", time.Since(start)))

	snapshot := p.quoteMap()
	if p.hub != nil {
		p.hub.Publish(Event{Topic: TopicQuotes, Payload: p.Quotes()})
	}
	p.mu.RLock()
	listeners := append([]func(map[string]Quote){}, p.listeners...)
	p.mu.RUnlock()
	for _, fn := range listeners {
		fn(snapshot)
	}
	return nil
}

// refreshOne updates a single symbol and reports whether a live quote was
// obtained.
func (p *QuotePoller) refreshOne(ctx context.Context, symbol string, withSparkline bool) bool {
	var sparkline []float64
	if withSparkline {
		sparkline = p.Sparkline(ctx, symbol)
	}

	quote, err := p.source.Quote(ctx, symbol)
	if err == nil && quote.Current == 0 && quote.Timestamp == 0 {
		err = errors.New("empty quote")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.quotes[symbol]
	if sparkline != nil {
		q.Sparkline = sparkline
	}
	if err != nil {
		p.logger.Warn("keeping cached quote", zap.String("symbol", symbol), zap.Error(err))
		return false
	}

	now := time.Now()
	price, change, pct := quote.Current, quote.Change, quote.PercentChange
	q.Price = &price
	q.Change = &change
	q.PercentChange = &pct
	q.LastUpdated = &now
	return true
}

// Sparkline returns the last seven daily closes of symbol, or a synthetic
// walk when the candles cannot be fetched.
func (p *QuotePoller) Sparkline(ctx context.Context, symbol string) []float64 {
	to := time.Now()
	from := to.Add(-7 * 24 * time.Hour)
	candles, err := p.candles(ctx, symbol, from, to)
	if err != nil || len(candles.Close) == 0 {
		if err != nil {
			p.logger.Debug("synthetic sparkline", zap.String("symbol", symbol), zap.Error(err))
		}
		return p.randomWalk(sparklinePoints)
	}
	return padSparkline(candles.Close, sparklinePoints)
}

// Candles passes through to the source for the stock detail view.
func (p *QuotePoller) Candles(ctx context.Context, symbol string, days int) (*Candles, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	return p.candles(ctx, symbol, from, to)
}

func (p *QuotePoller) candles(ctx context.Context, symbol string, from, to time.Time) (*Candles, error) {
	candles, err := p.source.Candles(ctx, symbol, from, to)
	if err == nil || p.fallback == nil {
		return candles, err
	}
	p.logger.Debug("trying fallback candles", zap.String("symbol", symbol), zap.Error(err))
	fallback, ferr := p.fallback.Candles(ctx, symbol, from, to)
	if ferr != nil {
		return nil, fmt.Errorf("%w; fallback: %v", err, ferr)
	}
	return fallback, nil
}

// padSparkline keeps the last n closes and left-pads with the first one.
func padSparkline(closes []float64, n int) []float64 {
	if len(closes) > n {
		closes = closes[len(closes)-n:]
	}
	out := make([]float64, 0, n)
	for i := len(closes); i < n; i++ {
		out = append(out, closes[0])
	}
	return append(out, closes...)
}

// randomWalk starts at 100 and moves by at most one point per step.
func (p *QuotePoller) randomWalk(n int) []float64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()

	out := make([]float64, 0, n)
	value := 100.0
	for i := 0; i < n; i++ {
		out = append(out, value)
		value += (p.rng.Float64() - 0.5) * 2
	}
	return out
}

func copyQuote(q *Quote) Quote {
	out := *q
	if q.Sparkline != nil {
		out.Sparkline = append([]float64(nil), q.Sparkline...)
	}
	return out
}

func waitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
