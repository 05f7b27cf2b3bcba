// Package symbols holds per-exchange symbol formatting helpers. Exchanges
// disagree on symbol casing in their stream names, so the adapters route
// every outbound symbol through here.
package symbols

import (
	"strings"

	"vortexflow/internal/model"
)

// Stream formats a symbol the way the exchange expects it in websocket
// stream names and subscription topics. Binance combined stream names are
// lowercase, Bybit v5 topics are uppercase.
func Stream(exchange model.Exchange, symbol string) string {
	switch exchange {
	case model.ExchangeBinance:
		return strings.ToLower(strings.TrimSpace(symbol))
	default:
		return strings.ToUpper(strings.TrimSpace(symbol))
	}
}

var perpQuotes = []string{"USDT", "USDC", "USD", "PERP"}

// SplitPerp derives base and quote assets from a concatenated perpetual
// symbol. Unknown quotes leave both parts empty.
func SplitPerp(symbol string) (base, quote string) {
	for _, q := range perpQuotes {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q
		}
	}
	return "", ""
}
