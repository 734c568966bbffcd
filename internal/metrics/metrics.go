// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceivedTotal counts payloads handed to a receiver callback.
	PacketsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundview_packets_received_total",
			Help: "Total number of telemetry packets received",
		},
		[]string{"topic"},
	)

	// PacketsDroppedTotal counts packets discarded before display.
	PacketsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundview_packets_dropped_total",
			Help: "Total number of telemetry packets dropped",
		},
		[]string{"topic", "reason"},
	)

	// FieldErrorsTotal counts field-local decode failures.
	FieldErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundview_field_errors_total",
			Help: "Total number of fields that failed to decode",
		},
		[]string{"topic", "kind"},
	)

	// DecodeLatencySeconds measures one packet decode.
	DecodeLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groundview_decode_latency_seconds",
			Help:    "Latency of packet decoding in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
		[]string{"topic"},
	)

	// ReceiverState tracks the receiver state machine.
	ReceiverState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "groundview_receiver_state",
			Help: "Current receiver state (0=stopped, 1=running, 2=stop requested)",
		},
		[]string{"topic"},
	)

	// RouterDatagramsTotal counts datagrams read by the router.
	RouterDatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundview_router_datagrams_total",
			Help: "Total number of datagrams received by the router",
		},
		[]string{"app_id"},
	)

	// RouterPublishErrorsTotal counts failed publishes.
	RouterPublishErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groundview_router_publish_errors_total",
			Help: "Total number of router publish failures",
		},
	)

	// RouterSources tracks sender addresses seen within the source TTL.
	RouterSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "groundview_router_sources",
			Help: "Number of telemetry sources seen recently",
		},
	)

	// ReporterErrorsTotal counts reporter errors by name.
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groundview_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter"},
	)
)

// Drop reasons.
const (
	DropTooShort  = "too_short"
	DropStopping  = "stopping"
	DropMalformed = "malformed"
	DropOversize  = "oversize"
)
