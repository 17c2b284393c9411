// Package models contains the data types shared by the foreground agent and
// the background worker.
package models

import "github.com/dmitrijs2005/gophbeat/internal/common"

// Settings is the operating configuration of a device. AuthToken and
// VAPIDPublicKey are secrets: they are stored encrypted and never mirrored.
type Settings struct {
	ServerURL         string `json:"serverUrl"`
	AuthToken         string `json:"authToken"`
	DeviceName        string `json:"deviceName"`
	VAPIDPublicKey    string `json:"vapidPublicKey"`
	Enabled           bool   `json:"enabled"`
	ActivityDetection bool   `json:"activityDetection"`
	PushEnabled       bool   `json:"pushEnabled"`
}

func DefaultSettings() Settings {
	return Settings{
		DeviceName:        common.DefaultDeviceName,
		ActivityDetection: true,
	}
}

// CanBeat reports whether the settings are complete enough to send a beat.
func (s Settings) CanBeat() bool {
	return s.Enabled && s.ServerURL != "" && s.AuthToken != ""
}
