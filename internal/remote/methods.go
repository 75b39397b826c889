// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package remote

// Methods invoked on the player.
const (
	MethodGetStatus = "Player.GetStatus"
	MethodPlayPause = "Player.PlayPause"
	MethodStop      = "Player.Stop"
	MethodSeek      = "Player.Seek"
	MethodSetVolume = "Application.SetVolume"
	MethodPlayURL   = "Player.PlayUrl"
)

// Notifications pushed by the player or the relay hub.
const (
	NotifyConnect      = "Player.OnConnect"
	NotifyPlay         = "Player.OnPlay"
	NotifyPause        = "Player.OnPause"
	NotifyStop         = "Player.OnStop"
	NotifySeek         = "Player.OnSeek"
	NotifyProgress     = "Player.OnProgress"
	NotifyVolume       = "Application.OnVolume"
	NotifyDeviceStatus = "PlayerHub.DeviceStatus"
)

// statusNotifications merge their payload into the playback status.
var statusNotifications = map[string]struct{}{
	NotifyConnect:  {},
	NotifyPlay:     {},
	NotifyPause:    {},
	NotifyStop:     {},
	NotifySeek:     {},
	NotifyProgress: {},
	NotifyVolume:   {},
}

// IsStatusNotification reports whether method updates the playback status.
func IsStatusNotification(method string) bool {
	_, ok := statusNotifications[method]
	return ok
}
