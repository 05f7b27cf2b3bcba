// Registers:
//
//	#vortexflow_trades_ingested_total
//	#vortexflow_snapshots_published_total
//	#vortexflow_messages_dropped_total
//	#go_* and process_* system metrics
//
// Exposes them on the configured address using the Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vortexflow/logger"
)

var (
	once               sync.Once
	tradesIngested     *prometheus.CounterVec
	snapshotsPublished *prometheus.CounterVec
	messagesDropped    *prometheus.CounterVec
)

// InitPrometheus registers the counters and serves the /metrics endpoint.
func InitPrometheus(address string) {
	once.Do(func() {
		tradesIngested = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vortexflow_trades_ingested_total",
				Help: "Number of normalized trades ingested from exchange feeds",
			},
			[]string{"exchange"},
		)

		snapshotsPublished = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vortexflow_snapshots_published_total",
				Help: "Number of metric snapshots published to subscribers",
			},
			[]string{"market"},
		)

		messagesDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vortexflow_messages_dropped_total",
				Help: "Number of messages dropped due to channel saturation",
			},
			[]string{"exchange", "metric"},
		)

		_ = prometheus.Register(tradesIngested)
		_ = prometheus.Register(snapshotsPublished)
		_ = prometheus.Register(messagesDropped)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(address, mux); err != nil {
				logger.GetLogger().WithComponent("metrics").WithError(err).Warn("prometheus metrics server stopped")
			}
		}()
	})
}

// IncrementTrades increases the ingestion counter for an exchange.
func IncrementTrades(exchange string) {
	if tradesIngested != nil {
		tradesIngested.WithLabelValues(exchange).Inc()
	}
}

// IncrementSnapshots increases the publication counter for a market key.
func IncrementSnapshots(market string) {
	if snapshotsPublished != nil {
		snapshotsPublished.WithLabelValues(market).Inc()
	}
}

// IncrementDropped increases the drop counter for an exchange and metric name.
func IncrementDropped(exchange, metric string) {
	if messagesDropped != nil {
		messagesDropped.WithLabelValues(exchange, metric).Inc()
	}
}
