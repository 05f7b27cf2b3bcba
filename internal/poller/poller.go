// Package poller fetches funding rate and open interest on a fixed
// interval and folds the deltas into the shared auxiliary state.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vortexflow/config"
	"vortexflow/internal/engine"
	"vortexflow/internal/model"
	"vortexflow/logger"
)

// AuxSource fetches one funding/open-interest sample for a symbol.
// Implementations are exchange specific.
type AuxSource interface {
	FetchAux(ctx context.Context, symbol string) (fundingRate, openInterest float64, err error)
}

// PriceFunc supplies the last trade price observed at poll time.
type PriceFunc func() float64

// Poller drives an AuxSource on a fixed interval. The first poll fires
// immediately on start so a fresh session has baselines as soon as
// possible. Fetch failures are logged and swallowed; stale values stay in
// place until the next successful poll.
type Poller struct {
	config  config.PollerConfig
	market  model.MarketDef
	source  AuxSource
	aux     *engine.AuxState
	priceFn PriceFunc
	limiter *rate.Limiter

	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewPoller(cfg config.PollerConfig, market model.MarketDef, source AuxSource, aux *engine.AuxState, priceFn PriceFunc) *Poller {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 250 * time.Millisecond
	}

	return &Poller{
		config:  cfg,
		market:  market,
		source:  source,
		aux:     aux,
		priceFn: priceFn,
		limiter: rate.NewLimiter(rate.Every(rateLimit), 1),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Start launches the polling worker. The first sample is fetched right
// away, subsequent samples on the configured interval.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("aux poller already running")
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	interval := p.config.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	p.log.WithComponent("aux_poller").WithFields(logger.Fields{
		"market":   p.market.Key(),
		"interval": interval.String(),
	}).Info("starting aux poller")

	p.wg.Add(1)
	go p.pollWorker(interval)
	return nil
}

// Stop cancels the worker and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.log.WithComponent("aux_poller").Info("aux poller stopped")
}

func (p *Poller) pollWorker(interval time.Duration) {
	defer p.wg.Done()

	p.PollOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce fetches a single sample and records it. Safe to call from the
// session controller for an immediate refresh after a market switch.
func (p *Poller) PollOnce() {
	log := p.log.WithComponent("aux_poller").WithFields(logger.Fields{
		"symbol": p.market.Symbol,
	})

	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	start := time.Now()
	funding, openInterest, err := p.source.FetchAux(ctx, p.market.Symbol)
	if err != nil {
		log.WithError(err).Warn("failed to fetch aux sample, keeping stale values")
		return
	}
	logger.LogPerformanceEntry(log, "aux_poller", "api_request", time.Since(start), logger.Fields{"symbol": p.market.Symbol})

	price := p.priceFn()
	p.aux.RecordPoll(funding, openInterest, price)

	log.WithFields(logger.Fields{
		"funding_rate":  funding,
		"open_interest": openInterest,
		"price":         price,
	}).Debug("recorded aux sample")
}

// NewSource returns the AuxSource for the market's exchange.
func NewSource(cfg *config.Config, exchange model.Exchange, timeout time.Duration) (AuxSource, error) {
	switch exchange {
	case model.ExchangeBinance:
		return NewBinanceSource(cfg.Source.Binance, timeout), nil
	case model.ExchangeBybit:
		return NewBybitSource(cfg.Source.Bybit, timeout), nil
	default:
		return nil, fmt.Errorf("no aux source for exchange %q", exchange)
	}
}
