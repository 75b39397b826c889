// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	discoveryProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_discovery_probes_total",
		Help: "Player discovery probes by outcome",
	}, []string{"outcome"}) // outcome=hit|miss

	discoveryScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_discovery_scans_total",
		Help: "Completed discovery scans by result",
	}, []string{"result"}) // result=found|not_found|canceled
)

// RecordDiscoveryProbe counts one probe.
func RecordDiscoveryProbe(hit bool) {
	if hit {
		discoveryProbes.WithLabelValues("hit").Inc()
		return
	}
	discoveryProbes.WithLabelValues("miss").Inc()
}

// RecordDiscoveryScan counts a finished scan.
func RecordDiscoveryScan(result string) {
	discoveryScans.WithLabelValues(result).Inc()
}
