package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"vortexflow/config"
)

// BybitSource reads funding rate and open interest from the Bybit v5
// market tickers endpoint.
type BybitSource struct {
	client *bybit.Client
}

func NewBybitSource(cfg config.BybitSourceConfig, timeout time.Duration) *BybitSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var client *bybit.Client
	if base := strings.TrimRight(strings.TrimSpace(cfg.RestURL), "/"); base != "" {
		client = bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(base))
	} else {
		client = bybit.NewBybitHttpClient("", "")
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	return &BybitSource{client: client}
}

type bybitTickersResult struct {
	List []struct {
		Symbol       string `json:"symbol"`
		FundingRate  string `json:"fundingRate"`
		OpenInterest string `json:"openInterest"`
	} `json:"list"`
}

func (s *BybitSource) FetchAux(ctx context.Context, symbol string) (float64, float64, error) {
	params := map[string]interface{}{
		"category": "linear",
		"symbol":   strings.ToUpper(symbol),
	}

	resp, err := s.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("market tickers: %w", err)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return 0, 0, fmt.Errorf("market tickers: marshal result: %w", err)
	}

	var result bybitTickersResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return 0, 0, fmt.Errorf("market tickers: decode result: %w", err)
	}
	if len(result.List) == 0 {
		return 0, 0, fmt.Errorf("market tickers: empty response for %s", symbol)
	}

	ticker := result.List[0]
	funding, err := strconv.ParseFloat(ticker.FundingRate, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("market tickers: parse funding rate: %w", err)
	}
	openInterest, err := strconv.ParseFloat(ticker.OpenInterest, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("market tickers: parse open interest: %w", err)
	}

	return funding, openInterest, nil
}
