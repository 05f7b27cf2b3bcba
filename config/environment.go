package config

import "github.com/kelseyhightower/envconfig"

// envOverrides mirrors the secrets and deployment knobs that operators set
// through the environment rather than the yaml file. Empty values leave the
// file configuration untouched.
type envOverrides struct {
	LogLevel         string `envconfig:"LOG_LEVEL"`
	MarketSymbol     string `envconfig:"VORTEX_MARKET_SYMBOL"`
	MarketExchange   string `envconfig:"VORTEX_MARKET_EXCHANGE"`
	OracleAPIKey     string `envconfig:"GEMINI_API_KEY"`
	S3AccessKeyID    string `envconfig:"AWS_ACCESS_KEY_ID"`
	S3SecretKey      string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	S3Bucket         string `envconfig:"VORTEX_S3_BUCKET"`
	CloudWatchRegion string `envconfig:"AWS_REGION"`
}

func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.MarketSymbol != "" {
		cfg.Market.Symbol = env.MarketSymbol
	}
	if env.MarketExchange != "" {
		cfg.Market.Exchange = env.MarketExchange
	}
	if env.OracleAPIKey != "" {
		cfg.Oracle.APIKey = env.OracleAPIKey
	}
	if env.S3AccessKeyID != "" {
		cfg.Storage.S3.AccessKeyID = env.S3AccessKeyID
	}
	if env.S3SecretKey != "" {
		cfg.Storage.S3.SecretAccessKey = env.S3SecretKey
	}
	if env.S3Bucket != "" {
		cfg.Storage.S3.Bucket = env.S3Bucket
	}
	if env.CloudWatchRegion != "" {
		cfg.Metrics.CloudWatch.Region = env.CloudWatchRegion
	}
	return nil
}
