package model

import (
	"fmt"
	"strings"
)

// Exchange identifies a supported trading venue.
type Exchange string

const (
	ExchangeBinance Exchange = "binance"
	ExchangeBybit   Exchange = "bybit"
)

// ParseExchange maps user facing identifiers onto the closed Exchange enum.
func ParseExchange(s string) (Exchange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binance":
		return ExchangeBinance, nil
	case "bybit":
		return ExchangeBybit, nil
	default:
		return "", fmt.Errorf("unsupported exchange %q", s)
	}
}

// MarketDef is the immutable identity of a tradable pair. Two markets are the
// same when symbol and exchange match; base/quote are informational.
type MarketDef struct {
	Symbol   string   `json:"symbol" yaml:"symbol"`
	Exchange Exchange `json:"exchange" yaml:"exchange"`
	Base     string   `json:"base" yaml:"base"`
	Quote    string   `json:"quote" yaml:"quote"`
}

// Same reports whether two market definitions refer to the same market.
func (m MarketDef) Same(other MarketDef) bool {
	return strings.EqualFold(m.Symbol, other.Symbol) && m.Exchange == other.Exchange
}

// Key renders the market in the EXCHANGE:SYMBOL form used across logs and the
// HTTP API.
func (m MarketDef) Key() string {
	return fmt.Sprintf("%s:%s", strings.ToUpper(string(m.Exchange)), strings.ToUpper(m.Symbol))
}

// IsZero reports whether the definition is empty.
func (m MarketDef) IsZero() bool {
	return m.Symbol == "" && m.Exchange == ""
}
