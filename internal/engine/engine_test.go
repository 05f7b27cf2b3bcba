package engine

import (
	"testing"
	"time"

	"vortexflow/config"
	"vortexflow/internal/channel"
	"vortexflow/internal/model"
)

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		TickInterval:     100 * time.Millisecond,
		Window:           60 * time.Second,
		HistoryCapacity:  30,
		BufferHighWater:  5000,
		LiquidationDecay: 0.99,
	}
}

func testMarket() model.MarketDef {
	return model.MarketDef{Symbol: "BTCUSDT", Exchange: model.ExchangeBinance, Base: "BTC", Quote: "USDT"}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ch := channel.NewChannels(16, 16)
	t.Cleanup(ch.Close)
	return NewEngine(testEngineConfig(), testMarket(), ch, NewAuxState(), func(model.MetricSnapshot) {})
}

func TestTickNoopBeforeFirstTrade(t *testing.T) {
	e := newTestEngine(t)
	if _, ok := e.Tick(time.Now()); ok {
		t.Fatalf("expected no snapshot before any trade arrives")
	}
}

func TestMomentumAndBearishDivergence(t *testing.T) {
	e := newTestEngine(t)
	now := time.UnixMilli(100_000)

	e.ingestTrade(model.Trade{Price: 100, Quantity: 1, TakerIsSeller: false, TimestampMs: 99_000})
	e.ingestTrade(model.Trade{Price: 101, Quantity: 2, TakerIsSeller: true, TimestampMs: 99_500})

	snapshot, ok := e.Tick(now)
	if !ok {
		t.Fatalf("expected a snapshot")
	}
	if snapshot.Price != 101 {
		t.Fatalf("expected last price 101, got %v", snapshot.Price)
	}
	// netDelta = 1 - 2 = -1, momentum against zero baseline = -1,
	// price change +1 against negative delta reads as bearish divergence.
	if e.prevNetDelta != -1 {
		t.Fatalf("expected previous net delta -1, got %v", e.prevNetDelta)
	}
	div := snapshot.Metrics[model.IndicatorCVDDivergence-1]
	if div.StatusLabel != model.StatusBearishDiv {
		t.Fatalf("expected bearish divergence, got %q", div.StatusLabel)
	}
}

func TestAbsorptionWorkedExample(t *testing.T) {
	got := absorptionScore(500_000, 0.001)
	if got != 0.5 {
		t.Fatalf("expected absorption 0.5, got %v", got)
	}
}

func TestAbsorptionClamp(t *testing.T) {
	if got := absorptionScore(1e12, 0.0001); got != 100 {
		t.Fatalf("expected clamp at 100, got %v", got)
	}
}

func TestDivergenceTruthTable(t *testing.T) {
	cases := []struct {
		priceChange float64
		netDelta    float64
		want        string
	}{
		{+1, -1, model.StatusBearishDiv},
		{-1, +1, model.StatusBullishDiv},
		{+1, +1, model.StatusSynced},
		{-1, -1, model.StatusSynced},
		{0, +1, model.StatusSynced},
		{+1, 0, model.StatusSynced},
		{0, 0, model.StatusSynced},
	}
	for _, c := range cases {
		got, _ := divergenceLabel(c.priceChange, c.netDelta)
		if got != c.want {
			t.Fatalf("divergence(%v,%v): expected %q, got %q", c.priceChange, c.netDelta, c.want, got)
		}
	}
}

func TestDensityThresholds(t *testing.T) {
	if got, _ := densityLabel(2e6, 1); got != model.StatusDiamond {
		t.Fatalf("expected DIAMOND, got %q", got)
	}
	if got, _ := densityLabel(2e5, 1); got != model.StatusConcrete {
		t.Fatalf("expected CONCRETE, got %q", got)
	}
	if got, _ := densityLabel(1e4, 1); got != model.StatusAir {
		t.Fatalf("expected AIR, got %q", got)
	}
	// Zero displacement with volume is maximally dense.
	if got, _ := densityLabel(100, 0); got != model.StatusDiamond {
		t.Fatalf("expected DIAMOND on zero range, got %q", got)
	}
}

func TestOrderSkewNeutralDefault(t *testing.T) {
	if got := orderSkew(0, 5); got != 1.0 {
		t.Fatalf("expected neutral skew 1.0, got %v", got)
	}
	if got := orderSkew(6, 3); got != 2.0 {
		t.Fatalf("expected skew 2.0, got %v", got)
	}
}

func TestLiquidationAccumulatorDecays(t *testing.T) {
	aux := NewAuxState()
	aux.ApplyLiquidation(10_000, 101, 1)

	first := aux.Decay(0.99)
	if first.LiquidationAccumulator != 9_900 {
		t.Fatalf("expected 9900 after one decay, got %v", first.LiquidationAccumulator)
	}
	second := aux.Decay(0.99)
	if second.LiquidationAccumulator >= first.LiquidationAccumulator {
		t.Fatalf("accumulator must strictly decrease without new input")
	}

	aux.ApplyLiquidation(1_000, 102, 2)
	third := aux.Snapshot()
	if third.LiquidationAccumulator <= second.LiquidationAccumulator {
		t.Fatalf("new notional must add to the accumulator")
	}
}

func TestFeedLag(t *testing.T) {
	e := newTestEngine(t)
	e.ingestTrade(model.Trade{Price: 100, Quantity: 1, TimestampMs: 99_000})

	snapshot, ok := e.Tick(time.UnixMilli(99_250))
	if !ok {
		t.Fatalf("expected a snapshot")
	}
	if snapshot.LagMs != 250 {
		t.Fatalf("expected lag 250ms, got %d", snapshot.LagMs)
	}
}

func TestHistoryCoalescesSameSecond(t *testing.T) {
	h := newHistorySeries(30)
	base := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	h.Record(base, 100)
	h.Record(base.Add(100*time.Millisecond), 101)
	if pts := h.Points(); len(pts) != 1 || pts[0].Value != 101 {
		t.Fatalf("ticks within one second must collapse to a single point, got %+v", pts)
	}

	h.Record(base.Add(time.Second), 102)
	if pts := h.Points(); len(pts) != 2 || pts[1].Value != 102 {
		t.Fatalf("second advance must append, got %+v", pts)
	}
}

func TestHistoryEvictsAtCapacity(t *testing.T) {
	h := newHistorySeries(3)
	base := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		h.Record(base.Add(time.Duration(i)*time.Second), float64(i))
	}

	pts := h.Points()
	if len(pts) != 3 {
		t.Fatalf("expected capacity 3, got %d", len(pts))
	}
	if pts[0].Value != 2 || pts[2].Value != 4 {
		t.Fatalf("expected FIFO eviction, got %+v", pts)
	}
}

func TestResetClearsAllState(t *testing.T) {
	e := newTestEngine(t)
	e.ingestTrade(model.Trade{Price: 100, Quantity: 50, TakerIsSeller: false, TimestampMs: 99_000})
	e.aux.ApplyLiquidation(50_000, 100, 99_000)
	if _, ok := e.Tick(time.UnixMilli(99_100)); !ok {
		t.Fatalf("expected a snapshot before reset")
	}

	e.Reset()

	if _, ok := e.Tick(time.UnixMilli(99_200)); ok {
		t.Fatalf("expected no snapshot right after reset")
	}
	if e.prevNetDelta != 0 {
		t.Fatalf("previous net delta must reset to zero")
	}

	// First post-reset flow computes momentum against a zero baseline.
	e.ingestTrade(model.Trade{Price: 200, Quantity: 3, TakerIsSeller: false, TimestampMs: 99_300})
	snapshot, ok := e.Tick(time.UnixMilli(99_400))
	if !ok {
		t.Fatalf("expected a snapshot after new flow")
	}
	liq := snapshot.Metrics[model.IndicatorLiquidationTape-1]
	if liq.Value != "$0" {
		t.Fatalf("liquidation accumulator leaked across reset: %q", liq.Value)
	}
	if len(snapshot.History) != 1 {
		t.Fatalf("history leaked across reset: %d points", len(snapshot.History))
	}
}

func TestIndicatorOrderIsFixed(t *testing.T) {
	e := newTestEngine(t)
	e.ingestTrade(model.Trade{Price: 100, Quantity: 1, TimestampMs: 99_000})

	snapshot, ok := e.Tick(time.UnixMilli(99_100))
	if !ok {
		t.Fatalf("expected a snapshot")
	}
	if len(snapshot.Metrics) != 12 {
		t.Fatalf("expected 12 indicators, got %d", len(snapshot.Metrics))
	}
	for i, m := range snapshot.Metrics {
		if m.ID != i+1 {
			t.Fatalf("indicator %d out of order: id=%d", i, m.ID)
		}
		if m.Label != model.IndicatorLabels[m.ID] {
			t.Fatalf("indicator %d carries wrong label %q", m.ID, m.Label)
		}
	}
}

func TestVCSStatusBuckets(t *testing.T) {
	if got := vcsStatus(60); got != model.StatusBurst {
		t.Fatalf("expected burst, got %q", got)
	}
	if got := vcsStatus(-60); got != model.StatusDump {
		t.Fatalf("expected dump, got %q", got)
	}
	if got := vcsStatus(1); got != model.StatusCoiling {
		t.Fatalf("expected coiling, got %q", got)
	}
	if got := vcsStatus(20); got != model.StatusNeutral {
		t.Fatalf("expected neutral, got %q", got)
	}
}

func TestEjectionCriticalThreshold(t *testing.T) {
	if got := ejectionStatus(80); got != model.StatusEjectionCritical {
		t.Fatalf("expected critical at 80, got %q", got)
	}
	if got := ejectionStatus(79.9); got != model.StatusEjectionFading {
		t.Fatalf("expected fading below 80, got %q", got)
	}
	if got := ejectionPower(90, 5); got != 100 {
		t.Fatalf("expected power clamp at 100, got %v", got)
	}
}

func TestAuxPollDeltas(t *testing.T) {
	aux := NewAuxState()

	aux.RecordPoll(0.0001, 1000, 100)
	if s := aux.Snapshot(); s.FundingAccelBps != 0 || s.OIDDivergenceScore != 0 {
		t.Fatalf("first poll must only seed baselines, got %+v", s)
	}

	// Funding +0.0002 => +2 bps; OI +10% vs price +5% => OID +5.
	aux.RecordPoll(0.0003, 1100, 105)
	s := aux.Snapshot()
	if diff := s.FundingAccelBps - 2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected funding accel 2 bps, got %v", s.FundingAccelBps)
	}
	if diff := s.OIDDivergenceScore - 5; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected OID divergence 5, got %v", s.OIDDivergenceScore)
	}
}
