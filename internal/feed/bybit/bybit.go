// Package bybit streams public trades and liquidations from the Bybit v5
// linear websocket.
package bybit

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

const (
	defaultStreamURL = "wss://stream.bybit.com/v5/public/linear"
	readDeadline     = 35 * time.Second
)

// Feed subscribes to publicTrade.<symbol> and allLiquidation.<symbol> on a
// single connection and keeps it alive with JSON ping frames.
type Feed struct {
	config   config.BybitSourceConfig
	channels *channel.Channels
	market   model.MarketDef
	ctx      context.Context
	cancel   context.CancelFunc
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewFeed(cfg config.BybitSourceConfig, ch *channel.Channels) *Feed {
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
		return fmt.Errorf("bybit feed already connected")
	}
	f.running = true
	f.market = market
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.log.WithComponent("bybit_feed").WithFields(logger.Fields{
		"symbol": market.Symbol,
	}).Info("starting bybit stream")

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
	f.log.WithComponent("bybit_feed").Info("bybit stream stopped")
}

func (f *Feed) streamMarket() {
	defer f.wg.Done()

	log := f.log.WithComponent("bybit_feed").WithFields(logger.Fields{
		"symbol": f.market.Symbol,
		"worker": "public_stream",
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

	url := strings.TrimRight(strings.TrimSpace(f.config.StreamURL), "/")
	if url == "" {
		url = defaultStreamURL
	}

	pingInterval := f.config.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}

	symbol := symbols.Stream(model.ExchangeBybit, f.market.Symbol)

	for {
		if f.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(f.ctx, url, nil)
		if err != nil {
			delay := retry.Duration()
			log.WithError(err).WithFields(logger.Fields{
				"retry_in": delay.String(),
			}).Warn("failed to connect to bybit websocket, retrying")
			select {
			case <-time.After(delay):
				continue
			case <-f.ctx.Done():
				return
			}
		}

		subMsg := map[string]any{
			"op": "subscribe",
			"args": []string{
				fmt.Sprintf("publicTrade.%s", symbol),
				fmt.Sprintf("allLiquidation.%s", symbol),
			},
		}
		if err := conn.WriteJSON(subMsg); err != nil {
			log.WithError(err).Warn("failed to send bybit subscription, reconnecting")
			_ = conn.Close()
			select {
			case <-time.After(retry.Duration()):
				continue
			case <-f.ctx.Done():
				return
			}
		}

		retry.Reset()
		log.Info("connected to bybit public stream")

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		pingCtx, pingCancel := context.WithCancel(context.Background())
		pingTicker := time.NewTicker(pingInterval)

		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-pingCtx.Done():
					return
				case <-pingTicker.C:
					conn.SetWriteDeadline(time.Now().Add(time.Second))
					if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
						log.WithError(err).Warn("failed to send bybit ping")
						pingCancel()
						return
					}
				}
			}
		}()

		for {
			if f.ctx.Err() != nil {
				_ = conn.Close()
				pingCancel()
				return
			}

			_, payload, err := conn.ReadMessage()
			if err != nil {
				_ = conn.Close()
				log.WithError(err).Warn("bybit stream error, reconnecting")
				break
			}
			conn.SetReadDeadline(time.Now().Add(readDeadline))

			f.handleMessage(payload, log)
		}

		pingCancel()
		select {
		case <-time.After(retry.Duration()):
		case <-f.ctx.Done():
			return
		}
	}
}

type streamEnvelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type publicTradeEntry struct {
	TradeTimeMs int64  `json:"T"`
	Side        string `json:"S"`
	Volume      string `json:"v"`
	Price       string `json:"p"`
}

type liquidationEntry struct {
	TradeTimeMs int64  `json:"T"`
	Volume      string `json:"v"`
	Price       string `json:"p"`
}

func (f *Feed) handleMessage(payload []byte, log *logger.Entry) {
	var env streamEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.WithError(err).Debug("failed to unmarshal bybit envelope, skipping message")
		return
	}

	switch {
	case strings.HasPrefix(env.Topic, "publicTrade."):
		f.handleTrades(env.Data, log)
	case strings.HasPrefix(env.Topic, "allLiquidation."):
		f.handleLiquidations(env.Data, log)
	}
}

func (f *Feed) handleTrades(data json.RawMessage, log *logger.Entry) {
	var entries []publicTradeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.WithError(err).Debug("failed to unmarshal bybit trades, skipping")
		return
	}

	for _, entry := range entries {
		price, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil {
			log.WithError(err).Debug("invalid bybit trade price, skipping")
			continue
		}
		qty, err := strconv.ParseFloat(entry.Volume, 64)
		if err != nil {
			log.WithError(err).Debug("invalid bybit trade volume, skipping")
			continue
		}

		// S is the taker side.
		trade := model.Trade{
			Price:         price,
			Quantity:      qty,
			TakerIsSeller: strings.EqualFold(entry.Side, "Sell"),
			TimestampMs:   entry.TradeTimeMs,
		}

		if !f.channels.Trade.SendRaw(f.ctx, trade) && f.ctx.Err() == nil {
			metrics.EmitDropMetric(f.log, metrics.DropMetricTradeRaw, "bybit", f.market.Symbol, "raw")
			log.Warn("trade channel full, dropping bybit trade")
		}
	}
}

func (f *Feed) handleLiquidations(data json.RawMessage, log *logger.Entry) {
	var entries []liquidationEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.WithError(err).Debug("failed to unmarshal bybit liquidations, skipping")
		return
	}

	for _, entry := range entries {
		price, err := strconv.ParseFloat(entry.Price, 64)
		if err != nil {
			log.WithError(err).Debug("invalid bybit liquidation price, skipping")
			continue
		}
		qty, err := strconv.ParseFloat(entry.Volume, 64)
		if err != nil {
			log.WithError(err).Debug("invalid bybit liquidation volume, skipping")
			continue
		}

		liquidation := model.Liquidation{
			NotionalUSD: price * qty,
			Price:       price,
			TimestampMs: entry.TradeTimeMs,
		}

		if !f.channels.Liq.SendRaw(f.ctx, liquidation) && f.ctx.Err() == nil {
			metrics.EmitDropMetric(f.log, metrics.DropMetricLiquidationRaw, "bybit", f.market.Symbol, "raw")
			log.Warn("liquidation channel full, dropping bybit event")
		}
	}
}
