// Package feed defines the exchange adapter contract and the factory that
// selects the concrete adapter for a market.
package feed

import (
	"context"
	"fmt"

	"vortexflow/config"
	"vortexflow/internal/channel"
	"vortexflow/internal/feed/binance"
	"vortexflow/internal/feed/bybit"
	"vortexflow/internal/model"
)

// Feed streams normalized trades and liquidations for one market into the
// shared channels. Connect returns once the stream workers are launched;
// Disconnect blocks until they have fully stopped.
type Feed interface {
	Connect(ctx context.Context, market model.MarketDef) error
	Disconnect()
}

// New returns the adapter matching the market's exchange.
func New(cfg *config.Config, ch *channel.Channels, exchange model.Exchange) (Feed, error) {
	switch exchange {
	case model.ExchangeBinance:
		return binance.NewFeed(cfg.Source.Binance, ch), nil
	case model.ExchangeBybit:
		return bybit.NewFeed(cfg.Source.Bybit, ch), nil
	default:
		return nil, fmt.Errorf("no feed adapter for exchange %q", exchange)
	}
}
