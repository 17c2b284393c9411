package models

import "time"

type MessageType string

const (
	MessageHeartbeatSent           MessageType = "heartbeat-sent"
	MessagePushSubscriptionExpired MessageType = "push-subscription-expired"
	MessageReplayIntents           MessageType = "replay-intents"
)

// Message travels between the two processes over the message channel.
// Which fields are set depends on Type.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	BeatCount *int64      `json:"beatCount,omitempty"`
	Source    Source      `json:"source,omitempty"`
	Message   string      `json:"message,omitempty"`
}

func HeartbeatSent(at time.Time, count int64, source Source) Message {
	at = at.UTC()
	return Message{Type: MessageHeartbeatSent, Timestamp: &at, BeatCount: &count, Source: source}
}
