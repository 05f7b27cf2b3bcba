// Package session owns the live set of components for the active market
// and switches them atomically when a new market is selected.
package session

import (
	"context"
	"fmt"
	"sync"

	"vortexflow/config"
	"vortexflow/internal/channel"
	"vortexflow/internal/engine"
	"vortexflow/internal/feed"
	"vortexflow/internal/hub"
	"vortexflow/internal/model"
	"vortexflow/internal/poller"
	"vortexflow/logger"
)

// State is the lifecycle phase of the session.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
)

// FeedFactory builds a feed adapter for an exchange. Injected so tests can
// run sessions without network access.
type FeedFactory func(cfg *config.Config, ch *channel.Channels, exchange model.Exchange) (feed.Feed, error)

// SourceFactory builds an aux source for an exchange.
type SourceFactory func(cfg *config.Config, exchange model.Exchange) (poller.AuxSource, error)

// liveSet is the per-market component group. It is discarded and rebuilt
// wholesale on every market switch.
type liveSet struct {
	market   model.MarketDef
	channels *channel.Channels
	feed     feed.Feed
	engine   *engine.Engine
	poller   *poller.Poller
	cancel   context.CancelFunc
}

// Session is the controller owning exactly one live market at a time.
type Session struct {
	config        *config.Config
	hub           *hub.Hub
	feedFactory   FeedFactory
	sourceFactory SourceFactory

	mu    sync.RWMutex
	state State
	live  *liveSet
	log   *logger.Log
}

func NewSession(cfg *config.Config, h *hub.Hub) *Session {
	return &Session{
		config: cfg,
		hub:    h,
		feedFactory: func(cfg *config.Config, ch *channel.Channels, exchange model.Exchange) (feed.Feed, error) {
			return feed.New(cfg, ch, exchange)
		},
		sourceFactory: func(cfg *config.Config, exchange model.Exchange) (poller.AuxSource, error) {
			return poller.NewSource(cfg, exchange, cfg.Poller.Timeout)
		},
		state: StateIdle,
		log:   logger.GetLogger(),
	}
}

// SetFactories overrides the component factories. Intended for tests.
func (s *Session) SetFactories(ff FeedFactory, sf SourceFactory) {
	if ff != nil {
		s.feedFactory = ff
	}
	if sf != nil {
		s.sourceFactory = sf
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ActiveMarket returns the market currently streamed, if any.
func (s *Session) ActiveMarket() (model.MarketDef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.live == nil {
		return model.MarketDef{}, false
	}
	return s.live.market, true
}

// SelectMarket switches the session to the given market. Selecting the
// already-active market is a no-op. The previous component set is fully
// torn down before the new one starts, so no snapshot mixing state from
// two markets is ever published.
func (s *Session) SelectMarket(ctx context.Context, market model.MarketDef) error {
	if market.IsZero() {
		return fmt.Errorf("cannot select an empty market")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live != nil && s.live.market.Same(market) && s.state == StateStreaming {
		return nil
	}

	log := s.log.WithComponent("session").WithFields(logger.Fields{
		"market": market.Key(),
	})
	log.Info("selecting market")

	s.teardownLocked()
	s.state = StateConnecting

	live, err := s.buildLocked(ctx, market)
	if err != nil {
		s.state = StateIdle
		return err
	}

	s.live = live
	s.state = StateStreaming
	log.Info("market streaming")
	return nil
}

func (s *Session) buildLocked(ctx context.Context, market model.MarketDef) (*liveSet, error) {
	ch := channel.NewChannels(s.config.Channels.TradeBuffer, s.config.Channels.LiquidationBuffer)

	adapter, err := s.feedFactory(s.config, ch, market.Exchange)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("build feed: %w", err)
	}

	source, err := s.sourceFactory(s.config, market.Exchange)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("build aux source: %w", err)
	}

	liveCtx, cancel := context.WithCancel(ctx)

	aux := engine.NewAuxState()
	eng := engine.NewEngine(s.config.Engine, market, ch, aux, s.hub.Publish)
	pol := poller.NewPoller(s.config.Poller, market, source, aux, eng.LastPrice)

	if err := adapter.Connect(liveCtx, market); err != nil {
		cancel()
		ch.Close()
		return nil, fmt.Errorf("connect feed: %w", err)
	}
	if err := eng.Start(liveCtx); err != nil {
		adapter.Disconnect()
		cancel()
		ch.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}
	if err := pol.Start(liveCtx); err != nil {
		eng.Stop()
		adapter.Disconnect()
		cancel()
		ch.Close()
		return nil, fmt.Errorf("start poller: %w", err)
	}

	ch.StartMetricsReporting(liveCtx)

	return &liveSet{
		market:   market,
		channels: ch,
		feed:     adapter,
		engine:   eng,
		poller:   pol,
		cancel:   cancel,
	}, nil
}

// teardownLocked stops and discards the live set. Callers must hold the
// write lock.
func (s *Session) teardownLocked() {
	if s.live == nil {
		return
	}

	log := s.log.WithComponent("session").WithFields(logger.Fields{
		"market": s.live.market.Key(),
	})
	log.Info("tearing down market session")

	s.live.poller.Stop()
	s.live.feed.Disconnect()
	s.live.engine.Stop()
	s.live.cancel()
	s.live.channels.Close()
	s.live = nil

	s.hub.Reset()
	log.Info("market session torn down")
}

// Stop tears down the live set and returns the session to idle.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.state = StateIdle
}
