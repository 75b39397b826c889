// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hubPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nestctl_hub_players",
		Help: "Players currently registered with the relay hub",
	})

	hubControllers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nestctl_hub_controllers",
		Help: "Controllers currently attached to the relay hub",
	})

	hubFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestctl_hub_frames_total",
		Help: "Frames handled by the relay hub by direction and outcome",
	}, []string{"direction", "outcome"}) // direction=to_player|to_controller; outcome=relayed|offline_error|dropped
)

// SetHubPeers records the number of registered players and controllers.
func SetHubPeers(players, controllers int) {
	hubPlayers.Set(float64(players))
	hubControllers.Set(float64(controllers))
}

// RecordHubFrame counts a frame handled by the hub.
func RecordHubFrame(direction, outcome string) {
	hubFrames.WithLabelValues(direction, outcome).Inc()
}
