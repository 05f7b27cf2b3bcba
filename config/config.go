package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Vortexflow VortexflowConfig `yaml:"vortexflow"`
	Logging    LoggingConfig    `yaml:"logging"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Engine     EngineConfig     `yaml:"engine"`
	Poller     PollerConfig     `yaml:"poller"`
	Source     SourceConfig     `yaml:"source"`
	Market     MarketConfig     `yaml:"market"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Storage    StorageConfig    `yaml:"storage"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Oracle     OracleConfig     `yaml:"oracle"`
}

type VortexflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type ChannelsConfig struct {
	TradeBuffer       int `yaml:"trade_buffer"`
	LiquidationBuffer int `yaml:"liquidation_buffer"`
}

type EngineConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	Window           time.Duration `yaml:"window"`
	HistoryCapacity  int           `yaml:"history_capacity"`
	BufferHighWater  int           `yaml:"buffer_high_water"`
	LiquidationDecay float64       `yaml:"liquidation_decay"`
}

type PollerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit time.Duration `yaml:"rate_limit"`
}

type SourceConfig struct {
	Binance BinanceSourceConfig `yaml:"binance"`
	Bybit   BybitSourceConfig   `yaml:"bybit"`
}

type BinanceSourceConfig struct {
	StreamURL    string        `yaml:"stream_url"`
	RestURL      string        `yaml:"rest_url"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

type BybitSourceConfig struct {
	StreamURL    string        `yaml:"stream_url"`
	RestURL      string        `yaml:"rest_url"`
	PingInterval time.Duration `yaml:"ping_interval"`
	ReconnectMin time.Duration `yaml:"reconnect_min"`
	ReconnectMax time.Duration `yaml:"reconnect_max"`
}

type MarketConfig struct {
	Symbol   string `yaml:"symbol"`
	Exchange string `yaml:"exchange"`
	Base     string `yaml:"base"`
	Quote    string `yaml:"quote"`
}

type MetricsConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	Prefix          string        `yaml:"prefix"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	Compression     string        `yaml:"compression"`
}

type DashboardConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Address          string        `yaml:"address"`
	AnalysisInterval time.Duration `yaml:"analysis_interval"`
}

type OracleConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	APIKey  string        `yaml:"api_key"`
}

// LoadConfig reads the yaml configuration file, applies environment variable
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Vortexflow.Name == "" {
		c.Vortexflow.Name = "vortexflow"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Channels.TradeBuffer <= 0 {
		c.Channels.TradeBuffer = 10000
	}
	if c.Channels.LiquidationBuffer <= 0 {
		c.Channels.LiquidationBuffer = 1000
	}
	if c.Engine.TickInterval <= 0 {
		c.Engine.TickInterval = 100 * time.Millisecond
	}
	if c.Engine.Window <= 0 {
		c.Engine.Window = 60 * time.Second
	}
	if c.Engine.HistoryCapacity <= 0 {
		c.Engine.HistoryCapacity = 30
	}
	if c.Engine.BufferHighWater <= 0 {
		c.Engine.BufferHighWater = 5000
	}
	if c.Engine.LiquidationDecay <= 0 || c.Engine.LiquidationDecay >= 1 {
		c.Engine.LiquidationDecay = 0.99
	}
	if c.Poller.Interval <= 0 {
		c.Poller.Interval = 10 * time.Second
	}
	if c.Poller.Timeout <= 0 {
		c.Poller.Timeout = 5 * time.Second
	}
	if c.Poller.RateLimit <= 0 {
		c.Poller.RateLimit = 250 * time.Millisecond
	}
	if c.Source.Binance.StreamURL == "" {
		c.Source.Binance.StreamURL = "wss://fstream.binance.com/stream"
	}
	if c.Source.Binance.RestURL == "" {
		c.Source.Binance.RestURL = "https://fapi.binance.com"
	}
	if c.Source.Binance.ReconnectMin <= 0 {
		c.Source.Binance.ReconnectMin = time.Second
	}
	if c.Source.Binance.ReconnectMax <= 0 {
		c.Source.Binance.ReconnectMax = 30 * time.Second
	}
	if c.Source.Bybit.StreamURL == "" {
		c.Source.Bybit.StreamURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if c.Source.Bybit.RestURL == "" {
		c.Source.Bybit.RestURL = "https://api.bybit.com"
	}
	if c.Source.Bybit.PingInterval <= 0 {
		c.Source.Bybit.PingInterval = 20 * time.Second
	}
	if c.Source.Bybit.ReconnectMin <= 0 {
		c.Source.Bybit.ReconnectMin = time.Second
	}
	if c.Source.Bybit.ReconnectMax <= 0 {
		c.Source.Bybit.ReconnectMax = 30 * time.Second
	}
	if c.Market.Symbol == "" {
		c.Market.Symbol = "BTCUSDT"
	}
	if c.Market.Exchange == "" {
		c.Market.Exchange = "binance"
	}
	if c.Metrics.Prometheus.Address == "" {
		c.Metrics.Prometheus.Address = "0.0.0.0:2112"
	}
	if c.Metrics.CloudWatch.Namespace == "" {
		c.Metrics.CloudWatch.Namespace = "Vortexflow"
	}
	if c.Storage.S3.FlushInterval <= 0 {
		c.Storage.S3.FlushInterval = time.Minute
	}
	if c.Storage.S3.Compression == "" {
		c.Storage.S3.Compression = "snappy"
	}
	if c.Dashboard.Address == "" {
		c.Dashboard.Address = "0.0.0.0:8080"
	}
	if c.Dashboard.AnalysisInterval <= 0 {
		c.Dashboard.AnalysisInterval = 12 * time.Second
	}
	if c.Oracle.URL == "" {
		c.Oracle.URL = "https://generativelanguage.googleapis.com"
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gemini-2.5-flash"
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = 8 * time.Second
	}
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Engine.TickInterval >= c.Engine.Window {
		return fmt.Errorf("engine tick interval %s must be shorter than window %s", c.Engine.TickInterval, c.Engine.Window)
	}
	if c.Storage.S3.Enabled && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket is required when s3 archiving is enabled")
	}
	if c.Oracle.Enabled && c.Oracle.APIKey == "" {
		return fmt.Errorf("oracle.api_key is required when the oracle is enabled")
	}
	return nil
}
