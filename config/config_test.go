package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "vortexflow:\n  name: vortexflow\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Engine.TickInterval != 100*time.Millisecond {
		t.Fatalf("expected default tick interval, got %v", cfg.Engine.TickInterval)
	}
	if cfg.Engine.Window != 60*time.Second {
		t.Fatalf("expected default window, got %v", cfg.Engine.Window)
	}
	if cfg.Engine.HistoryCapacity != 30 {
		t.Fatalf("expected default history capacity, got %d", cfg.Engine.HistoryCapacity)
	}
	if cfg.Engine.LiquidationDecay != 0.99 {
		t.Fatalf("expected default decay, got %v", cfg.Engine.LiquidationDecay)
	}
	if cfg.Market.Symbol != "BTCUSDT" || cfg.Market.Exchange != "binance" {
		t.Fatalf("expected default market, got %+v", cfg.Market)
	}
	if cfg.Source.Bybit.PingInterval != 20*time.Second {
		t.Fatalf("expected default bybit ping interval, got %v", cfg.Source.Bybit.PingInterval)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
engine:
  tick_interval: 250ms
  window: 30s
market:
  symbol: ETHUSDT
  exchange: bybit
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Engine.TickInterval != 250*time.Millisecond {
		t.Fatalf("expected 250ms tick, got %v", cfg.Engine.TickInterval)
	}
	if cfg.Market.Symbol != "ETHUSDT" || cfg.Market.Exchange != "bybit" {
		t.Fatalf("unexpected market: %+v", cfg.Market)
	}
}

func TestValidateRejectsTickLongerThanWindow(t *testing.T) {
	path := writeConfig(t, `
engine:
  tick_interval: 2m
  window: 60s
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for tick >= window")
	}
}

func TestValidateRequiresBucketWhenS3Enabled(t *testing.T) {
	path := writeConfig(t, `
storage:
  s3:
    enabled: true
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing bucket")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VORTEX_MARKET_SYMBOL", "SOLUSDT")
	t.Setenv("VORTEX_MARKET_EXCHANGE", "bybit")

	path := writeConfig(t, "market:\n  symbol: BTCUSDT\n  exchange: binance\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Market.Symbol != "SOLUSDT" || cfg.Market.Exchange != "bybit" {
		t.Fatalf("environment overrides not applied: %+v", cfg.Market)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
