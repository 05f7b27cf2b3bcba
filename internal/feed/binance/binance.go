// Package binance streams aggregate trades and forced liquidations from
// the Binance futures combined websocket.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"vortexflow/config"
	"vortexflow/internal/channel"
	"vortexflow/internal/metrics"
	"vortexflow/internal/model"
	"vortexflow/internal/symbols"
	"vortexflow/logger"
)

// Feed subscribes to <symbol>@aggTrade and <symbol>@forceOrder on one
// combined stream connection.
type Feed struct {
	config   config.BinanceSourceConfig
	channels *channel.Channels
	market   model.MarketDef
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewFeed(cfg config.BinanceSourceConfig, ch *channel.Channels) *Feed {
	return &Feed{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Connect launches the stream worker for the market.
func (f *Feed) Connect(ctx context.Context, market model.MarketDef) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("binance feed already connected")
	}
	f.running = true
	f.market = market
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.log.WithComponent("binance_feed").WithFields(logger.Fields{
		"symbol": market.Symbol,
	}).Info("starting binance stream")

	f.wg.Add(1)
	go f.streamMarket()
	return nil
}

// Disconnect stops the worker and waits for it to exit.
func (f *Feed) Disconnect() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel := f.cancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.wg.Wait()
	f.log.WithComponent("binance_feed").Info("binance stream stopped")
}

func (f *Feed) streamURL() string {
	base := strings.TrimRight(strings.TrimSpace(f.config.StreamURL), "/")
	if base == "" {
		base = "wss://fstream.binance.com"
	}
	sym := symbols.Stream(model.ExchangeBinance, f.market.Symbol)
	return fmt.Sprintf("%s/stream?streams=%s@aggTrade/%s@forceOrder", base, sym, sym)
}

func (f *Feed) streamMarket() {
	defer f.wg.Done()

	log := f.log.WithComponent("binance_feed").WithFields(logger.Fields{
		"symbol": f.market.Symbol,
		"worker": "combined_stream",
	})

	retry := &backoff.Backoff{
		Min:    f.config.ReconnectMin,
		Max:    f.config.ReconnectMax,
		Factor: 2,
		Jitter: true,
	}
	if retry.Min <= 0 {
		retry.Min = time.Second
	}
	if retry.Max <= 0 {
		retry.Max = 30 * time.Second
	}

	url := f.streamURL()

	for {
		if f.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(f.ctx, url, nil)
		if err != nil {
			delay := retry.Duration()
			log.WithError(err).WithFields(logger.Fields{
				"retry_in": delay.String(),
			}).Warn("failed to connect to binance websocket, retrying")
			select {
			case <-time.After(delay):
				continue
			case <-f.ctx.Done():
				return
			}
		}

		retry.Reset()
		log.Info("connected to binance combined stream")

		for {
			if f.ctx.Err() != nil {
				_ = conn.Close()
				return
			}

			_, payload, err := conn.ReadMessage()
			if err != nil {
				_ = conn.Close()
				log.WithError(err).Warn("binance stream error, reconnecting")
				break
			}

			f.handleMessage(payload, log)
		}

		select {
		case <-time.After(retry.Duration()):
		case <-f.ctx.Done():
			return
		}
	}
}

type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type aggTradeEvent struct {
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTimeMs  int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

type forceOrderEvent struct {
	Order struct {
		Symbol       string `json:"s"`
		Side         string `json:"S"`
		Quantity     string `json:"q"`
		AveragePrice string `json:"ap"`
		TradeTimeMs  int64  `json:"T"`
	} `json:"o"`
}

func (f *Feed) handleMessage(payload []byte, log *logger.Entry) {
	var env combinedEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.WithError(err).Debug("failed to unmarshal binance envelope, skipping message")
		return
	}

	switch {
	case strings.HasSuffix(env.Stream, "@aggTrade"):
		f.handleAggTrade(env.Data, log)
	case strings.HasSuffix(env.Stream, "@forceOrder"):
		f.handleForceOrder(env.Data, log)
	}
}

func (f *Feed) handleAggTrade(data json.RawMessage, log *logger.Entry) {
	var event aggTradeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.WithError(err).Debug("failed to unmarshal binance aggTrade, skipping")
		return
	}

	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		log.WithError(err).Debug("invalid aggTrade price, skipping")
		return
	}
	qty, err := strconv.ParseFloat(event.Quantity, 64)
	if err != nil {
		log.WithError(err).Debug("invalid aggTrade quantity, skipping")
		return
	}

	// m=true means the buyer was the maker, so the taker sold.
	trade := model.Trade{
		Price:         price,
		Quantity:      qty,
		TakerIsSeller: event.BuyerIsMaker,
		TimestampMs:   event.TradeTimeMs,
	}

	if !f.channels.Trade.SendRaw(f.ctx, trade) && f.ctx.Err() == nil {
		metrics.EmitDropMetric(f.log, metrics.DropMetricTradeRaw, "binance", f.market.Symbol, "raw")
		log.Warn("trade channel full, dropping binance trade")
	}
}

func (f *Feed) handleForceOrder(data json.RawMessage, log *logger.Entry) {
	var event forceOrderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.WithError(err).Debug("failed to unmarshal binance forceOrder, skipping")
		return
	}

	price, err := strconv.ParseFloat(event.Order.AveragePrice, 64)
	if err != nil {
		log.WithError(err).Debug("invalid forceOrder price, skipping")
		return
	}
	qty, err := strconv.ParseFloat(event.Order.Quantity, 64)
	if err != nil {
		log.WithError(err).Debug("invalid forceOrder quantity, skipping")
		return
	}

	liquidation := model.Liquidation{
		NotionalUSD: price * qty,
		Price:       price,
		TimestampMs: event.Order.TradeTimeMs,
	}

	if !f.channels.Liq.SendRaw(f.ctx, liquidation) && f.ctx.Err() == nil {
		metrics.EmitDropMetric(f.log, metrics.DropMetricLiquidationRaw, "binance", f.market.Symbol, "raw")
		log.Warn("liquidation channel full, dropping binance event")
	}
}
