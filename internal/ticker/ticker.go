// Package ticker implements the Price Ticker Loop (C11): a single
// background task that, once per interval during market hours, fetches
// a batch of prices for every ticker currently subscribed on the hub
// and broadcasts each update. Grounded field-for-field on
// original_source/.../app/services/price_update_service.py
// (PriceUpdateService.fetch_and_broadcast_prices/run_update_loop/
// is_market_hours/start/stop), restructured into the teacher's
// ticker-select-on-channels loop idiom in place of asyncio's
// wait_for/Event pairing.
package ticker

import (
	"context"
	"time"

	"github.com/stockassistant/orchestrator/internal/hub"
	"github.com/stockassistant/orchestrator/internal/logging"
)

const (
	defaultInterval = 60 * time.Second
	shutdownGrace   = 5 * time.Second
	batchPricesTool = "batch_get_prices"
)

// Broadcaster is the subset of *hub.Hub the loop needs: which tickers
// to fetch, and where to send each update.
type Broadcaster interface {
	SubscribedTickers() []string
	BroadcastPriceUpdate(ticker string, update hub.PriceUpdate) int
}

// ToolCaller is the remote tool client, expected to already be wrapped
// with the circuit breaker (C2), retry executor (C3), and cache (C4)
// by the composition root — the loop itself issues exactly one
// logical call per tick.
type ToolCaller interface {
	CallTool(ctx context.Context, toolName string, arguments map[string]any, dest any) error
}

// MarketHoursFunc reports whether the market is open at t.
type MarketHoursFunc func(t time.Time) bool

// DefaultMarketHours is the placeholder US-East trading window
// (9:30 AM - 4:00 PM ET, approximated as 14:30-21:00 UTC without
// daylight-saving or holiday awareness) spec.md §4.11/§9 names as the
// starting predicate, ported from price_update_service.py's
// is_market_hours. An operator can inject a calendar-aware
// MarketHoursFunc instead.
func DefaultMarketHours(t time.Time) bool {
	t = t.UTC()
	open := time.Date(t.Year(), t.Month(), t.Day(), 14, 30, 0, 0, time.UTC)
	closeAt := time.Date(t.Year(), t.Month(), t.Day(), 21, 0, 0, 0, time.UTC)
	return !t.Before(open) && !t.After(closeAt)
}

type quote struct {
	Ticker        string  `json:"ticker"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
}

// Loop is the C11 background task.
type Loop struct {
	hub        Broadcaster
	tools      ToolCaller
	marketOpen MarketHoursFunc
	interval   time.Duration
	log        *logging.Logger

	stop chan struct{}
	done chan struct{}
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithInterval overrides the default 60s tick interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithMarketHours overrides DefaultMarketHours.
func WithMarketHours(fn MarketHoursFunc) Option {
	return func(l *Loop) { l.marketOpen = fn }
}

// New builds a Loop. Call Run in its own goroutine and Stop to shut it
// down gracefully.
func New(h Broadcaster, tools ToolCaller, log *logging.Logger, opts ...Option) *Loop {
	if log == nil {
		log = logging.NewDefault("ticker")
	}
	l := &Loop{
		hub:        h,
		tools:      tools,
		marketOpen: DefaultMarketHours,
		interval:   defaultInterval,
		log:        log,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run drives the tick loop until Stop is called or ctx is cancelled.
// The first tick fires immediately, matching the original's
// check-then-wait ordering.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	l.log.Info("price ticker loop started")

	t := time.NewTicker(l.interval)
	defer t.Stop()

	l.tick(ctx)
	for {
		select {
		case <-l.stop:
			l.log.Info("price ticker loop stopped")
			return
		case <-ctx.Done():
			l.log.Info("price ticker loop stopped: context cancelled")
			return
		case <-t.C:
			l.tick(ctx)
		}
	}
}

// Stop signals Run to exit and waits up to 5s for it to do so.
func (l *Loop) Stop() {
	close(l.stop)
	select {
	case <-l.done:
	case <-time.After(shutdownGrace):
		l.log.Warn("price ticker loop did not stop gracefully within 5s")
	}
}

func (l *Loop) tick(ctx context.Context) {
	if !l.marketOpen(time.Now()) {
		l.log.Debug("market is closed, skipping price update")
		return
	}

	tickers := l.hub.SubscribedTickers()
	if len(tickers) == 0 {
		l.log.Debug("no subscribed tickers, skipping price update")
		return
	}

	l.log.WithField("tickers", len(tickers)).Debug("fetching prices")
	quotes, err := l.fetchPrices(ctx, tickers)
	if err != nil {
		l.log.WithError(err).Warn("failed to fetch batch prices")
		return
	}

	for _, q := range quotes {
		l.hub.BroadcastPriceUpdate(q.Ticker, hub.PriceUpdate{
			Price:         q.Price,
			Change:        q.Change,
			ChangePercent: q.ChangePercent,
			Volume:        q.Volume,
		})
	}
	l.log.WithField("broadcast_count", len(quotes)).Info("broadcasted price updates")
}

func (l *Loop) fetchPrices(ctx context.Context, tickers []string) ([]quote, error) {
	var quotes []quote
	err := l.tools.CallTool(ctx, batchPricesTool, map[string]any{"symbols": tickers}, &quotes)
	return quotes, err
}
