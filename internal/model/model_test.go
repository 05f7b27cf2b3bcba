package model

import "testing"

func TestParseExchange(t *testing.T) {
	cases := []struct {
		in      string
		want    Exchange
		wantErr bool
	}{
		{"binance", ExchangeBinance, false},
		{"BYBIT", ExchangeBybit, false},
		{"  Binance  ", ExchangeBinance, false},
		{"kraken", "", true},
		{"", "", true},
	}
	for _, c := range cases {
		got, err := ParseExchange(c.in)
		if c.wantErr {
			if err == nil {
				t.Fatalf("ParseExchange(%q): expected error", c.in)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Fatalf("ParseExchange(%q) = %v, %v; want %v", c.in, got, err, c.want)
		}
	}
}

func TestMarketDefSame(t *testing.T) {
	a := MarketDef{Symbol: "BTCUSDT", Exchange: ExchangeBinance}
	b := MarketDef{Symbol: "btcusdt", Exchange: ExchangeBinance}
	c := MarketDef{Symbol: "BTCUSDT", Exchange: ExchangeBybit}

	if !a.Same(b) {
		t.Fatalf("symbol comparison must be case-insensitive")
	}
	if a.Same(c) {
		t.Fatalf("markets on different exchanges are not the same")
	}
}

func TestMarketDefKey(t *testing.T) {
	m := MarketDef{Symbol: "ethusdt", Exchange: ExchangeBybit}
	if got := m.Key(); got != "BYBIT:ETHUSDT" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestTradeNotional(t *testing.T) {
	trade := Trade{Price: 100, Quantity: 0.5}
	if got := trade.NotionalUSD(); got != 50 {
		t.Fatalf("expected notional 50, got %v", got)
	}
}

func TestIndicatorLabelsComplete(t *testing.T) {
	for id := IndicatorTakerDelta; id <= IndicatorRecentBruise; id++ {
		if IndicatorLabels[id] == "" {
			t.Fatalf("missing label for indicator %d", id)
		}
	}
	if len(IndicatorLabels) != 12 {
		t.Fatalf("expected 12 labels, got %d", len(IndicatorLabels))
	}
}
