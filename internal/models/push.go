package models

const DefaultPushEncoding = "aes128gcm"

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a push endpoint registration. It may only be sent to the
// server when both keys are present.
type Subscription struct {
	Endpoint string   `json:"endpoint"`
	Keys     PushKeys `json:"keys"`
	Encoding string   `json:"encoding,omitempty"`
}

func (s *Subscription) Valid() bool {
	return s != nil && s.Endpoint != "" && s.Keys.P256dh != "" && s.Keys.Auth != ""
}

type SubscribeRequest struct {
	Endpoint   string   `json:"endpoint"`
	Keys       PushKeys `json:"keys"`
	Encoding   string   `json:"encoding"`
	DeviceName string   `json:"deviceName"`
}

type UnsubscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	DeviceName string `json:"deviceName"`
}

// PushPayload is the decrypted body of an inbound push message.
type PushPayload struct {
	Type string `json:"type"`
}
