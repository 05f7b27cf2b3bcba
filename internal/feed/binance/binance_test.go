package binance

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

	f := NewFeed(config.BinanceSourceConfig{}, ch)
	f.market = model.MarketDef{Symbol: "BTCUSDT", Exchange: model.ExchangeBinance}
	f.ctx = context.Background()
	return f, ch
}

func TestStreamURL(t *testing.T) {
	f, _ := newTestFeed(t)
	want := "wss://fstream.binance.com/stream?streams=btcusdt@aggTrade/btcusdt@forceOrder"
	if got := f.streamURL(); got != want {
		t.Fatalf("unexpected stream url:\n got %s\nwant %s", got, want)
	}
}

func TestHandleAggTrade(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	payload := []byte(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","s":"BTCUSDT","p":"43210.50","q":"0.250","T":1700000000123,"m":true}}`)
	f.handleMessage(payload, log)

	select {
	case trade := <-ch.Trade.Raw:
		if trade.Price != 43210.50 || trade.Quantity != 0.25 {
			t.Fatalf("unexpected trade values: %+v", trade)
		}
		if !trade.TakerIsSeller {
			t.Fatalf("m=true must normalize to a taker sell")
		}
		if trade.TimestampMs != 1700000000123 {
			t.Fatalf("unexpected timestamp: %d", trade.TimestampMs)
		}
	default:
		t.Fatalf("expected a normalized trade on the channel")
	}
}

func TestHandleAggTradeBuyAggressor(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	payload := []byte(`{"stream":"btcusdt@aggTrade","data":{"p":"100","q":"1","T":1,"m":false}}`)
	f.handleMessage(payload, log)

	trade := <-ch.Trade.Raw
	if trade.TakerIsSeller {
		t.Fatalf("m=false must normalize to a taker buy")
	}
}

func TestHandleForceOrder(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	payload := []byte(`{"stream":"btcusdt@forceOrder","data":{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","q":"0.014","ap":"9910","T":1568014460893}}}`)
	f.handleMessage(payload, log)

	select {
	case liq := <-ch.Liq.Raw:
		want := 9910 * 0.014
		if diff := liq.NotionalUSD - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("expected notional %v, got %v", want, liq.NotionalUSD)
		}
		if liq.Price != 9910 {
			t.Fatalf("expected price 9910, got %v", liq.Price)
		}
	default:
		t.Fatalf("expected a liquidation on the channel")
	}
}

func TestHandleMessageIgnoresMalformedPayload(t *testing.T) {
	f, ch := newTestFeed(t)
	log := logger.GetLogger().WithComponent("test")

	f.handleMessage([]byte(`not json`), log)
	f.handleMessage([]byte(`{"stream":"btcusdt@aggTrade","data":{"p":"oops","q":"1","T":1}}`), log)

	select {
	case trade := <-ch.Trade.Raw:
		t.Fatalf("malformed payload must not produce a trade: %+v", trade)
	default:
	}
}
