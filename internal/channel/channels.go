package channel

import (
	"context"
	"time"

	"vortexflow/internal/channel/liq"
	"vortexflow/internal/channel/trade"
	"vortexflow/internal/metrics"
	"vortexflow/logger"
)

type Channels struct {
	Trade *trade.Channels
	Liq   *liq.Channels
}

func NewChannels(tradeBufferSize, liqBufferSize int) *Channels {
	return &Channels{
		Trade: trade.NewChannels(tradeBufferSize),
		Liq:   liq.NewChannels(liqBufferSize),
	}
}

func (c *Channels) Close() {
	if c.Trade != nil {
		c.Trade.Close()
	}
	if c.Liq != nil {
		c.Liq.Close()
	}
}

// StartMetricsReporting emits channel throughput metrics every 30 seconds
// until the context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		log := logger.GetLogger()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tradeStats := c.Trade.GetStats()
				liqStats := c.Liq.GetStats()
				metrics.EmitMetric(log, "channels", "trade_raw_sent", tradeStats.RawSent, "gauge", nil)
				metrics.EmitMetric(log, "channels", "trade_raw_dropped", tradeStats.RawDropped, "gauge", nil)
				metrics.EmitMetric(log, "channels", "liq_raw_sent", liqStats.RawSent, "gauge", nil)
				metrics.EmitMetric(log, "channels", "liq_raw_dropped", liqStats.RawDropped, "gauge", nil)
			}
		}
	}()
}
