// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nestctl_build_info",
		Help: "Build information, constant 1",
	}, []string{"version"})

	configReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_config_reloads_total",
		Help: "Configuration reloads by result",
	}, []string{"result"}) // result=success|failure

	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestctl_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	devicePairingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_device_pairings_total",
		Help: "Device pairing changes by action",
	}, []string{"action"}) // action=pair|unpair
)

func SetBuildInfo(version string) {
	if version == "" {
		version = "unknown"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version).Set(1)
}

// RecordConfigReload counts a reload attempt. A failed reload whose cause
// is invalid settings also counts as a validation error.
func RecordConfigReload(success, invalid bool) {
	if success {
		configReloadsTotal.WithLabelValues("success").Inc()
		return
	}
	configReloadsTotal.WithLabelValues("failure").Inc()
	if invalid {
		configValidationErrors.Inc()
	}
}

func RecordDevicePairing(action string) { devicePairingsTotal.WithLabelValues(action).Inc() }
