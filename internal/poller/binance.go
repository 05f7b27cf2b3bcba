package poller

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"vortexflow/config"
)

// BinanceSource reads the premium index and open interest from the Binance
// futures REST API.
type BinanceSource struct {
	client *futures.Client
}

func NewBinanceSource(cfg config.BinanceSourceConfig, timeout time.Duration) *BinanceSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := futures.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: timeout}

	if base := strings.TrimRight(strings.TrimSpace(cfg.RestURL), "/"); base != "" {
		client.SetApiEndpoint(base)
	}

	return &BinanceSource{client: client}
}

func (s *BinanceSource) FetchAux(ctx context.Context, symbol string) (float64, float64, error) {
	symbol = strings.ToUpper(symbol)

	premium, err := s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("premium index: %w", err)
	}
	if len(premium) == 0 {
		return 0, 0, fmt.Errorf("premium index: empty response for %s", symbol)
	}

	funding, err := strconv.ParseFloat(premium[0].LastFundingRate, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("premium index: parse funding rate: %w", err)
	}

	oi, err := s.client.NewGetOpenInterestService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("open interest: %w", err)
	}

	openInterest, err := strconv.ParseFloat(oi.OpenInterest, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("open interest: parse value: %w", err)
	}

	return funding, openInterest, nil
}
