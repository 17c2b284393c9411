// Package common holds the constants and sentinel errors shared by the
// foreground agent and the background worker.
package common

// Request headers understood by the heartbeat server.
const (
	AuthHeaderName   = "Auth"
	DeviceHeaderName = "Device"
)

// Names of the background events. They double as the identifiers
// under which retry intents and schedules are stored.
const (
	SyncTagHeartbeat     = "send-heartbeat"
	PeriodicTagHeartbeat = "heartbeat-sync"
	PushTypeHeartbeat    = "heartbeat-request"
)

// Server paths, relative to the configured server URL.
const (
	BeatPath            = "/api/beat"
	PushSubscribePath   = "/api/push-subscribe"
	PushUnsubscribePath = "/api/push-unsubscribe"
)

const DefaultDeviceName = "Go Device"

const WorkerUserAgent = "gophbeat-worker"
