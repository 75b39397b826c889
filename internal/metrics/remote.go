// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nestctl_remote_connection_state",
		Help: "Remote player connection state (disconnected=1, connecting=1, connected=1; others 0)",
	}, []string{"state"})

	remoteConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_remote_connect_attempts_total",
		Help: "Connection attempts to the remote player by outcome",
	}, []string{"outcome"}) // outcome=success|failure|identity_error|superseded

	remoteReconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestctl_remote_reconnects_scheduled_total",
		Help: "Total number of reconnect timers armed",
	})

	remoteRPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_remote_rpc_calls_total",
		Help: "JSON-RPC calls issued to the remote player by method and outcome",
	}, []string{"method", "outcome"}) // outcome=success|remote_error|not_connected|closed|canceled|write_error

	remoteRPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nestctl_remote_rpc_duration_seconds",
		Help:    "Latency of JSON-RPC calls that received a response",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method"})

	remotePendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nestctl_remote_pending_requests",
		Help: "JSON-RPC requests awaiting a response",
	})

	remoteFailedPending = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_remote_pending_failed_total",
		Help: "Pending requests failed because their connection ended",
	}, []string{"reason"}) // reason=closed|reset

	remoteInboundFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_remote_inbound_frames_total",
		Help: "Inbound frames by kind",
	}, []string{"kind"}) // kind=response|orphan_response|notification|malformed

	remoteNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_remote_notifications_total",
		Help: "Notifications received by method and whether they were applied to status",
	}, []string{"method", "applied"})
)

var connectionStates = []string{"disconnected", "connecting", "connected"}

// SetRemoteConnectionState records the active connection state.
func SetRemoteConnectionState(state string) {
	for _, s := range connectionStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		remoteConnectionState.WithLabelValues(s).Set(value)
	}
}

// RecordRemoteConnectAttempt counts a connection attempt by outcome.
func RecordRemoteConnectAttempt(outcome string) {
	remoteConnectAttempts.WithLabelValues(outcome).Inc()
}

// RecordRemoteReconnectScheduled counts an armed reconnect timer.
func RecordRemoteReconnectScheduled() {
	remoteReconnectsScheduled.Inc()
}

// RecordRemoteRPC counts a finished call.
func RecordRemoteRPC(method, outcome string) {
	remoteRPCCalls.WithLabelValues(method, outcome).Inc()
}

// ObserveRemoteRPCDuration records the latency of an answered call.
func ObserveRemoteRPCDuration(method string, seconds float64) {
	remoteRPCDuration.WithLabelValues(method).Observe(seconds)
}

// SetRemotePendingRequests records the size of the pending table.
func SetRemotePendingRequests(n int) {
	remotePendingRequests.Set(float64(n))
}

// RecordRemotePendingFailed counts requests failed by a teardown.
func RecordRemotePendingFailed(reason string, n int) {
	if n <= 0 {
		return
	}
	remoteFailedPending.WithLabelValues(reason).Add(float64(n))
}

// RecordRemoteFrame counts an inbound frame by kind.
func RecordRemoteFrame(kind string) {
	remoteInboundFrames.WithLabelValues(kind).Inc()
}

// RecordRemoteNotification counts a notification.
func RecordRemoteNotification(method string, applied bool) {
	a := "false"
	if applied {
		a = "true"
	}
	remoteNotifications.WithLabelValues(method, a).Inc()
}
