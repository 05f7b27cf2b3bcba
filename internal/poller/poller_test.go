package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"vortexflow/config"
	"vortexflow/internal/engine"
	"vortexflow/internal/model"
)

type fakeSource struct {
	funding      float64
	openInterest float64
	err          error
	calls        atomic.Int64
}

func (f *fakeSource) FetchAux(ctx context.Context, symbol string) (float64, float64, error) {
	f.calls.Add(1)
	return f.funding, f.openInterest, f.err
}

func testPollerConfig() config.PollerConfig {
	return config.PollerConfig{
		Interval:  time.Hour,
		Timeout:   time.Second,
		RateLimit: time.Millisecond,
	}
}

func TestPollOnceRecordsSample(t *testing.T) {
	source := &fakeSource{funding: 0.0001, openInterest: 1000}
	aux := engine.NewAuxState()
	market := model.MarketDef{Symbol: "BTCUSDT", Exchange: model.ExchangeBinance}

	p := NewPoller(testPollerConfig(), market, source, aux, func() float64 { return 100 })
	p.PollOnce()
	if source.calls.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", source.calls.Load())
	}

	source.funding = 0.0003
	source.openInterest = 1100
	p.PollOnce()

	s := aux.Snapshot()
	if diff := s.FundingAccelBps - 2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected funding accel 2 bps, got %v", s.FundingAccelBps)
	}
	if s.OpenInterest != 1100 {
		t.Fatalf("expected open interest 1100, got %v", s.OpenInterest)
	}
}

func TestPollOnceSwallowsErrors(t *testing.T) {
	aux := engine.NewAuxState()
	market := model.MarketDef{Symbol: "BTCUSDT", Exchange: model.ExchangeBinance}

	good := &fakeSource{funding: 0.0002, openInterest: 500}
	p := NewPoller(testPollerConfig(), market, good, aux, func() float64 { return 100 })
	p.PollOnce()

	before := aux.Snapshot()

	failing := &fakeSource{err: errors.New("boom")}
	p.source = failing
	p.PollOnce()

	after := aux.Snapshot()
	if after != before {
		t.Fatalf("failed poll must retain stale values: before=%+v after=%+v", before, after)
	}
}

func TestStartPollsImmediately(t *testing.T) {
	source := &fakeSource{funding: 0.0001, openInterest: 1000}
	aux := engine.NewAuxState()
	market := model.MarketDef{Symbol: "BTCUSDT", Exchange: model.ExchangeBinance}

	p := NewPoller(testPollerConfig(), market, source, aux, func() float64 { return 100 })
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for source.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("expected an immediate poll on start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := p.Start(context.Background()); err == nil {
		t.Fatalf("expected error on double start")
	}
}

func TestNewSourceUnknownExchange(t *testing.T) {
	cfg := &config.Config{}
	if _, err := NewSource(cfg, model.Exchange("kraken"), time.Second); err == nil {
		t.Fatalf("expected error for unsupported exchange")
	}
}
