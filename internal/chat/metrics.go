// internal/chat/metrics.go

package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_connections",
			Help: "Number of live websocket connections",
		},
	)

	metricEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Total inbound protocol events by name",
		},
		[]string{"event"},
	)

	metricMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total messages sent by chat type",
		},
		[]string{"chat_type"},
	)

	metricFanoutReceivers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_message_fanout_receivers",
			Help:    "Distribution of receivers per message fan-out",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
)
