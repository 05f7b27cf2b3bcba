// Package directory lists the tradable markets of each supported exchange
// through one-shot REST lookups. No derived state is kept beyond a cache
// of the last successful listing.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	bybit "github.com/bybit-exchange/bybit.go.api"
	"golang.org/x/time/rate"

	"vortexflow/config"
	"vortexflow/internal/model"
	"vortexflow/internal/symbols"
	"vortexflow/logger"
)

// Directory fetches and caches market listings.
type Directory struct {
	binance *futures.Client
	bybit   *bybit.Client
	limiter *rate.Limiter

	mu    sync.RWMutex
	cache map[model.Exchange][]model.MarketDef
	log   *logger.Log
}

func NewDirectory(cfg *config.Config) *Directory {
	timeout := cfg.Poller.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	binanceClient := futures.NewClient("", "")
	binanceClient.HTTPClient = &http.Client{Timeout: timeout}
	if base := strings.TrimRight(strings.TrimSpace(cfg.Source.Binance.RestURL), "/"); base != "" {
		binanceClient.SetApiEndpoint(base)
	}

	var bybitClient *bybit.Client
	if base := strings.TrimRight(strings.TrimSpace(cfg.Source.Bybit.RestURL), "/"); base != "" {
		bybitClient = bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	} else {
		bybitClient = bybit.NewBybitHttpClient("", "")
	}
	bybitClient.HTTPClient = &http.Client{Timeout: timeout}

	rateLimit := cfg.Poller.RateLimit
	if rateLimit <= 0 {
		rateLimit = 250 * time.Millisecond
	}

	return &Directory{
		binance: binanceClient,
		bybit:   bybitClient,
		limiter: rate.NewLimiter(rate.Every(rateLimit), 1),
		cache:   make(map[model.Exchange][]model.MarketDef),
		log:     logger.GetLogger(),
	}
}

// ListMarkets returns the tradable perpetual markets for the exchange,
// sorted by symbol. Results are cached; a fetch failure falls back to the
// cached listing when one exists.
func (d *Directory) ListMarkets(ctx context.Context, exchange model.Exchange) ([]model.MarketDef, error) {
	log := d.log.WithComponent("directory").WithFields(logger.Fields{
		"exchange": string(exchange),
	})

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var (
		markets []model.MarketDef
		err     error
	)
	switch exchange {
	case model.ExchangeBinance:
		markets, err = d.listBinance(ctx)
	case model.ExchangeBybit:
		markets, err = d.listBybit(ctx)
	default:
		return nil, fmt.Errorf("unsupported exchange %q", exchange)
	}

	if err != nil {
		d.mu.RLock()
		cached, ok := d.cache[exchange]
		d.mu.RUnlock()
		if ok {
			log.WithError(err).Warn("market listing failed, serving cached result")
			return cached, nil
		}
		return nil, err
	}

	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol < markets[j].Symbol })

	d.mu.Lock()
	d.cache[exchange] = markets
	d.mu.Unlock()

	log.WithFields(logger.Fields{"markets": len(markets)}).Info("market listing refreshed")
	return markets, nil
}

func (d *Directory) listBinance(ctx context.Context) ([]model.MarketDef, error) {
	info, err := d.binance.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}

	markets := make([]model.MarketDef, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		if sym.Status != "TRADING" {
			continue
		}
		markets = append(markets, model.MarketDef{
			Symbol:   sym.Symbol,
			Exchange: model.ExchangeBinance,
			Base:     sym.BaseAsset,
			Quote:    sym.QuoteAsset,
		})
	}
	return markets, nil
}

func (d *Directory) listBybit(ctx context.Context) ([]model.MarketDef, error) {
	params := map[string]interface{}{"category": "linear"}
	resp, err := d.bybit.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("market tickers: %w", err)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("market tickers: marshal result: %w", err)
	}

	var result struct {
		List []struct {
			Symbol string `json:"symbol"`
		} `json:"list"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("market tickers: decode result: %w", err)
	}

	markets := make([]model.MarketDef, 0, len(result.List))
	for _, entry := range result.List {
		base, quote := symbols.SplitPerp(entry.Symbol)
		markets = append(markets, model.MarketDef{
			Symbol:   entry.Symbol,
			Exchange: model.ExchangeBybit,
			Base:     base,
			Quote:    quote,
		})
	}
	return markets, nil
}
