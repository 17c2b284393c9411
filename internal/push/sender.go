package push

import (
	"context"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// DefaultTTL is how long a push service should keep an undelivered message.
const DefaultTTL = 60

// VAPIDKeys is an application server key pair in URL-safe base64.
type VAPIDKeys struct {
	Public  string `json:"publicKey"`
	Private string `json:"privateKey"`
}

func GenerateVAPIDKeys() (VAPIDKeys, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPIDKeys{}, fmt.Errorf("failed to generate vapid keys: %w", err)
	}
	return VAPIDKeys{Public: pub, Private: priv}, nil
}

// SendResult mirrors what a push service answered.
type SendResult struct {
	StatusCode int
	// Gone is set when the subscription no longer exists (404 or 410).
	Gone bool
	Body string
}

// Sender delivers encrypted messages to subscriptions. It plays the server
// side of push and is used by pushctl and tests.
type Sender struct {
	keys       VAPIDKeys
	subscriber string
	client     *http.Client
}

func NewSender(keys VAPIDKeys, subscriber string, client *http.Client) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sender{keys: keys, subscriber: subscriber, client: client}
}

func (s *Sender) Send(ctx context.Context, sub models.Subscription, payload []byte) (SendResult, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.keys.Public,
		VAPIDPrivateKey: s.keys.Private,
		TTL:             DefaultTTL,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to send push message: %w", err)
	}
	defer resp.Body.Close()

	res := SendResult{StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		res.Gone = true
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		res.Body = string(b)
	}
	return res, nil
}
