// Package engine derives the published market indicators from the rolling
// trade window on a fixed-rate tick, decoupled from trade arrival rate.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"vortexflow/config"
	"vortexflow/internal/buffer"
	"vortexflow/internal/channel"
	"vortexflow/internal/metrics"
	"vortexflow/internal/model"
	"vortexflow/logger"
)

// PublishFunc receives every assembled snapshot.
type PublishFunc func(model.MetricSnapshot)

// Engine drains normalized trades and liquidations from the channels into
// its window state and publishes a MetricSnapshot on every tick.
type Engine struct {
	config   config.EngineConfig
	market   model.MarketDef
	channels *channel.Channels
	buffer   *buffer.TradeBuffer
	aux      *AuxState
	history  *historySeries
	publish  PublishFunc
	clock    func() time.Time

	prevNetDelta float64
	lastPrice    float64
	priceMu      sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewEngine creates an engine bound to one market. The aux state is shared
// with the poller; publish is invoked synchronously from the tick loop.
func NewEngine(cfg config.EngineConfig, market model.MarketDef, ch *channel.Channels, aux *AuxState, publish PublishFunc) *Engine {
	return &Engine{
		config:   cfg,
		market:   market,
		channels: ch,
		buffer:   buffer.NewTradeBuffer(cfg.Window.Milliseconds(), cfg.BufferHighWater),
		aux:      aux,
		history:  newHistorySeries(cfg.HistoryCapacity),
		publish:  publish,
		clock:    time.Now,
		log:      logger.GetLogger(),
	}
}

// SetClock replaces the time source. Intended for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// Start launches the drain and tick goroutines.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.log.WithComponent("engine").WithFields(logger.Fields{
		"market":        e.market.Key(),
		"tick_interval": e.config.TickInterval.String(),
		"window":        e.config.Window.String(),
	}).Info("starting metrics engine")

	e.wg.Add(2)
	go e.drainLoop()
	go e.tickLoop()
	return nil
}

// Stop cancels the loops and waits for them to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	e.log.WithComponent("engine").WithFields(logger.Fields{"market": e.market.Key()}).Info("metrics engine stopped")
}

func (e *Engine) drainLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case t, ok := <-e.channels.Trade.Raw:
			if !ok {
				return
			}
			e.ingestTrade(t)
		case l, ok := <-e.channels.Liq.Raw:
			if !ok {
				return
			}
			e.aux.ApplyLiquidation(l.NotionalUSD, l.Price, l.TimestampMs)
		}
	}
}

func (e *Engine) ingestTrade(t model.Trade) {
	e.buffer.Append(t)
	e.priceMu.Lock()
	e.lastPrice = t.Price
	e.priceMu.Unlock()
	metrics.IncrementTrades(string(e.market.Exchange))
}

func (e *Engine) tickLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if snapshot, ok := e.Tick(e.clock()); ok {
				e.publish(snapshot)
				metrics.IncrementSnapshots(e.market.Key())
			}
		}
	}
}

// LastPrice returns the price of the most recent ingested trade.
func (e *Engine) LastPrice() float64 {
	e.priceMu.RLock()
	defer e.priceMu.RUnlock()
	return e.lastPrice
}

// Tick runs one computation cycle at the given instant. It returns false
// when no trade has been seen yet, so the first snapshot always reflects
// real flow.
func (e *Engine) Tick(now time.Time) (model.MetricSnapshot, bool) {
	nowMs := now.UnixMilli()
	trades := e.buffer.Windowed(nowMs)
	lastPrice := e.LastPrice()

	if len(trades) == 0 && lastPrice == 0 {
		// Decay still runs so liquidation pressure fades while idle.
		e.aux.Decay(e.config.LiquidationDecay)
		return model.MetricSnapshot{}, false
	}

	stats := computeWindowStats(trades)
	if stats.LastPrice != 0 {
		lastPrice = stats.LastPrice
	}

	netDelta := stats.NetDelta()
	momentum := netDelta - e.prevNetDelta
	e.prevNetDelta = netDelta

	rangePct := priceRangePct(stats.PriceRange(), lastPrice)
	absorption := absorptionScore(stats.VolumeUSD, rangePct)
	density, densityColor := densityLabel(stats.VolumeUSD, stats.PriceRange())
	divergence, divergenceColor := divergenceLabel(stats.PriceChange(), netDelta)
	skew := orderSkew(stats.BuyCount, stats.SellCount)

	aux := e.aux.Decay(e.config.LiquidationDecay)

	// Momentum is per tick; scale to a per-minute velocity for display.
	execVelocity := momentum * (float64(time.Minute) / float64(e.config.TickInterval))
	raw := vcsRaw(momentum, execVelocity, aux.FundingAccelBps)
	power := ejectionPower(absorption, aux.OIDDivergenceScore)

	var lagMs int64
	if stats.NewestMs > 0 {
		lagMs = nowMs - stats.NewestMs
		if lagMs < 0 {
			lagMs = 0
		}
	}

	e.history.Record(now, lastPrice)

	snapshot := model.MetricSnapshot{
		Market:         e.market,
		Timestamp:      now,
		Price:          lastPrice,
		LagMs:          lagMs,
		VCSScore:       vcsScore(raw),
		VCSStatus:      vcsStatus(raw),
		EjectionPower:  power,
		EjectionStatus: ejectionStatus(power),
		Metrics:        e.assembleIndicators(stats, aux, netDelta, lastPrice, momentum, execVelocity, absorption, density, densityColor, divergence, divergenceColor, skew, nowMs),
		History:        e.history.Points(),
	}
	return snapshot, true
}

func (e *Engine) assembleIndicators(
	stats windowStats,
	aux AuxSnapshot,
	netDelta, lastPrice, momentum, execVelocity, absorption float64,
	density string, densityColor model.StatusColor,
	divergence string, divergenceColor model.StatusColor,
	skew float64,
	nowMs int64,
) []model.Indicator {
	deltaUSD := netDelta * lastPrice

	takerStatus, takerColor := model.StatusNeutral, model.ColorGray
	if math.Abs(netDelta) >= 20 {
		if netDelta > 0 {
			takerStatus, takerColor = model.StatusBullish, model.ColorGreen
		} else {
			takerStatus, takerColor = model.StatusBearish, model.ColorRed
		}
	}

	liqStatus, liqColor := model.StatusQuiet, model.ColorGray
	liqHot := aux.LiquidationAccumulator > 10000
	if liqHot {
		liqStatus, liqColor = model.StatusActive, model.ColorPink
	}

	absorpStatus, absorpColor := model.StatusLowAbsorp, model.ColorGray
	if absorption > 50 {
		absorpStatus, absorpColor = model.StatusHighAbsorp, model.ColorBlue
	}

	fundingStatus, fundingColor := model.StatusCalm, model.ColorGray
	if math.Abs(aux.FundingAccelBps) > 0.5 {
		fundingStatus, fundingColor = model.StatusVolatile, model.ColorRed
	}

	velocityStatus, velocityColor := model.StatusStable, model.ColorGray
	if math.Abs(execVelocity) > 10 {
		velocityStatus, velocityColor = model.StatusTurbulent, model.ColorPink
	}

	skewStatus, skewColor := model.StatusBalanced, model.ColorGray
	switch {
	case skew > 1.2:
		skewStatus, skewColor = model.StatusBuySkew, model.ColorGreen
	case skew < 0.8:
		skewStatus, skewColor = model.StatusSellSkew, model.ColorRed
	}

	oidStatus, oidColor := model.StatusFairValue, model.ColorGray
	if math.Abs(aux.OIDDivergenceScore) > 1 {
		oidStatus, oidColor = model.StatusDivergent, model.ColorPink
	}

	bidStatus, bidColor := model.StatusWeak, model.ColorGray
	askStatus, askColor := model.StatusWeak, model.ColorGray
	if stats.BidWallQty >= stats.AskWallQty && stats.BidWallQty > 0 {
		bidStatus, bidColor = model.StatusStrong, model.ColorGreen
	}
	if stats.AskWallQty > stats.BidWallQty {
		askStatus, askColor = model.StatusStrong, model.ColorRed
	}

	bruiseValue := "---"
	bruiseStatus, bruiseColor := model.StatusInactive, model.ColorGray
	bruiseHot := false
	if aux.LastLiquidationMs > 0 && nowMs-aux.LastLiquidationMs <= e.config.Window.Milliseconds() {
		bruiseValue = fmt.Sprintf("$%.2f", aux.LastLiquidationPrice)
		bruiseStatus, bruiseColor = model.StatusActive, model.ColorPink
		bruiseHot = true
	}

	return []model.Indicator{
		{
			ID:          model.IndicatorTakerDelta,
			Label:       model.IndicatorLabels[model.IndicatorTakerDelta],
			Value:       fmt.Sprintf("%+.2f ($%.0f)", netDelta, deltaUSD),
			StatusLabel: takerStatus,
			StatusColor: takerColor,
		},
		{
			ID:          model.IndicatorLiquidationTape,
			Label:       model.IndicatorLabels[model.IndicatorLiquidationTape],
			Value:       fmt.Sprintf("$%.0f", aux.LiquidationAccumulator),
			StatusLabel: liqStatus,
			StatusColor: liqColor,
			Highlighted: liqHot,
		},
		{
			ID:          model.IndicatorWhaleAbsorption,
			Label:       model.IndicatorLabels[model.IndicatorWhaleAbsorption],
			Value:       fmt.Sprintf("%.1f%%", absorption),
			StatusLabel: absorpStatus,
			StatusColor: absorpColor,
		},
		{
			ID:          model.IndicatorFundingAccel,
			Label:       model.IndicatorLabels[model.IndicatorFundingAccel],
			Value:       fmt.Sprintf("%+.3f", aux.FundingAccelBps),
			StatusLabel: fundingStatus,
			StatusColor: fundingColor,
		},
		{
			ID:          model.IndicatorCVDDivergence,
			Label:       model.IndicatorLabels[model.IndicatorCVDDivergence],
			Value:       divergence,
			StatusLabel: divergence,
			StatusColor: divergenceColor,
		},
		{
			ID:          model.IndicatorCVDVelocity,
			Label:       model.IndicatorLabels[model.IndicatorCVDVelocity],
			Value:       fmt.Sprintf("%+.1f/m", execVelocity),
			StatusLabel: velocityStatus,
			StatusColor: velocityColor,
		},
		{
			ID:          model.IndicatorSentimentSkew,
			Label:       model.IndicatorLabels[model.IndicatorSentimentSkew],
			Value:       fmt.Sprintf("%.2f", skew),
			StatusLabel: skewStatus,
			StatusColor: skewColor,
		},
		{
			ID:          model.IndicatorOIDDivergence,
			Label:       model.IndicatorLabels[model.IndicatorOIDDivergence],
			Value:       fmt.Sprintf("%+.2fx", aux.OIDDivergenceScore),
			StatusLabel: oidStatus,
			StatusColor: oidColor,
		},
		{
			ID:          model.IndicatorFractalDensity,
			Label:       model.IndicatorLabels[model.IndicatorFractalDensity],
			Value:       density,
			StatusLabel: density,
			StatusColor: densityColor,
		},
		{
			ID:          model.IndicatorBidWall,
			Label:       model.IndicatorLabels[model.IndicatorBidWall],
			Value:       fmt.Sprintf("%.3f", stats.BidWallQty),
			StatusLabel: bidStatus,
			StatusColor: bidColor,
		},
		{
			ID:          model.IndicatorAskWall,
			Label:       model.IndicatorLabels[model.IndicatorAskWall],
			Value:       fmt.Sprintf("%.3f", stats.AskWallQty),
			StatusLabel: askStatus,
			StatusColor: askColor,
		},
		{
			ID:          model.IndicatorRecentBruise,
			Label:       model.IndicatorLabels[model.IndicatorRecentBruise],
			Value:       bruiseValue,
			StatusLabel: bruiseStatus,
			StatusColor: bruiseColor,
			Highlighted: bruiseHot,
		},
	}
}

// Reset clears window, history, physics and auxiliary state. Used when the
// session switches markets so no value leaks across.
func (e *Engine) Reset() {
	e.buffer.Reset()
	e.history.Reset()
	e.aux.Reset()
	e.prevNetDelta = 0
	e.priceMu.Lock()
	e.lastPrice = 0
	e.priceMu.Unlock()
}
