package bybit

import (
	"context"
	"testing"

	"vortexflow/config"
	"vortexflow/internal/channel"
	"vortexflow/internal/model"
	"vortexflow/logger"
)

func newTestFeed(t *testing.T) (*Feed, *channel.Channels) {
	t.Helper()
	ch := channel.NewChannels(16, 16)
	t.Cleanup(ch.Close)

	f := NewFeed(config.BybitSourceConfig{}, ch)
	f.market = model.MarketDef{Symbol: "BTCUSDT", Exchange: model.ExchangeBybit}
	f.ctx = context.Background()
	return f, ch
}

func TestHandlePublicTrade(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	payload := []byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1700000000200,"data":[{"T":1700000000123,"s":"BTCUSDT","S":"Sell","v":"0.5","p":"43000.10"}]}`)
	f.handleMessage(payload, log)

	select {
	case trade := <-ch.Trade.Raw:
		if trade.Price != 43000.10 || trade.Quantity != 0.5 {
			t.Fatalf("unexpected trade values: %+v", trade)
		}
		if !trade.TakerIsSeller {
			t.Fatalf("S=Sell must normalize to a taker sell")
		}
		if trade.TimestampMs != 1700000000123 {
			t.Fatalf("unexpected timestamp: %d", trade.TimestampMs)
		}
	default:
		t.Fatalf("expected a normalized trade on the channel")
	}
}

func TestHandlePublicTradeBatch(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	payload := []byte(`{"topic":"publicTrade.BTCUSDT","data":[{"T":1,"S":"Buy","v":"1","p":"100"},{"T":2,"S":"Sell","v":"2","p":"101"}]}`)
	f.handleMessage(payload, log)

	first := <-ch.Trade.Raw
	second := <-ch.Trade.Raw
	if first.TakerIsSeller || !second.TakerIsSeller {
		t.Fatalf("batch entries normalized out of order: %+v %+v", first, second)
	}
}

func TestHandleLiquidation(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	payload := []byte(`{"topic":"allLiquidation.BTCUSDT","ts":1700000000200,"data":[{"T":1700000000100,"s":"BTCUSDT","S":"Buy","v":"2","p":"42000"}]}`)
	f.handleMessage(payload, log)

	select {
	case liq := <-ch.Liq.Raw:
		if liq.NotionalUSD != 84000 {
			t.Fatalf("expected notional 84000, got %v", liq.NotionalUSD)
		}
		if liq.Price != 42000 {
			t.Fatalf("expected price 42000, got %v", liq.Price)
		}
	default:
		t.Fatalf("expected a liquidation on the channel")
	}
}

func TestHandleMessageIgnoresOtherTopics(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	f.handleMessage([]byte(`{"op":"pong"}`), log)
	f.handleMessage([]byte(`{"topic":"orderbook.50.BTCUSDT","data":{}}`), log)

	select {
	case trade := <-ch.Trade.Raw:
		t.Fatalf("unrelated topics must not produce trades: %+v", trade)
	default:
	}
}
