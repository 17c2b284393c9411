// Package push is the local web push platform. It hands out subscriptions
// the way a browser push service does and receives RFC 8291 encrypted
// messages for them.
package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

const (
	authSecretSize = 16
	keyCurrent     = "current"
	keyPrefix      = "registration:"
)

var ErrUnknownSubscription = errors.New("unknown push subscription")

// Store is the part of the durable store used for registrations.
type Store interface {
	Get(ctx context.Context, domain, key string) ([]byte, error)
	Put(ctx context.Context, domain, key string, value []byte) error
	Delete(ctx context.Context, domain, key string) error
}

// Codec protects the subscription private key at rest.
type Codec interface {
	InitializeKey(ctx context.Context) ([]byte, error)
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// record is the stored form of a registration.
type record struct {
	ID                   string    `json:"id"`
	Endpoint             string    `json:"endpoint"`
	PrivateKey           string    `json:"privateKey"`
	P256dh               string    `json:"p256dh"`
	Auth                 string    `json:"auth"`
	ApplicationServerKey string    `json:"applicationServerKey"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Registration is a decrypted subscription ready for receiving messages.
type Registration struct {
	ID                   string
	Endpoint             string
	PrivateKey           *ecdh.PrivateKey
	Auth                 []byte
	ApplicationServerKey []byte
}

// Platform keeps at most one current subscription per device.
type Platform struct {
	store   Store
	codec   Codec
	baseURL string
	clock   func() time.Time
}

func NewPlatform(st Store, codec Codec, baseURL string) *Platform {
	return &Platform{
		store:   st,
		codec:   codec,
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   time.Now,
	}
}

// Endpoint returns the URL messages for id must be posted to.
func (p *Platform) Endpoint(id string) string {
	return p.baseURL + "/push/" + id
}

// Subscription returns the current subscription, or nil when there is none.
func (p *Platform) Subscription(ctx context.Context) (*models.Subscription, error) {
	rec, err := p.current(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return &models.Subscription{
		Endpoint: rec.Endpoint,
		Keys:     models.PushKeys{P256dh: rec.P256dh, Auth: rec.Auth},
		Encoding: models.DefaultPushEncoding,
	}, nil
}

// Subscribe creates a new subscription bound to applicationServerKey and
// makes it current. A previous subscription is dropped.
func (p *Platform) Subscribe(ctx context.Context, applicationServerKey []byte) (*models.Subscription, error) {
	if _, err := ecdh.P256().NewPublicKey(applicationServerKey); err != nil {
		return nil, fmt.Errorf("invalid application server key: %w", err)
	}
	if _, err := p.codec.InitializeKey(ctx); err != nil {
		return nil, err
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate subscription key: %w", err)
	}
	sealed, err := p.codec.Encrypt(b64(priv.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt subscription key: %w", err)
	}

	id := uuid.NewString()
	rec := record{
		ID:                   id,
		Endpoint:             p.Endpoint(id),
		PrivateKey:           sealed,
		P256dh:               b64(priv.PublicKey().Bytes()),
		Auth:                 b64(common.GenerateRandByteArray(authSecretSize)),
		ApplicationServerKey: b64(applicationServerKey),
		CreatedAt:            p.clock().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	if err := p.Unsubscribe(ctx); err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, store.DomainPush, keyPrefix+id, raw); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	if err := p.store.Put(ctx, store.DomainPush, keyCurrent, []byte(id)); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	return &models.Subscription{
		Endpoint: rec.Endpoint,
		Keys:     models.PushKeys{P256dh: rec.P256dh, Auth: rec.Auth},
		Encoding: models.DefaultPushEncoding,
	}, nil
}

// Unsubscribe forgets the current subscription. Messages sent to it are
// answered with 410 Gone afterwards.
func (p *Platform) Unsubscribe(ctx context.Context) error {
	id, err := p.store.Get(ctx, store.DomainPush, keyCurrent)
	if err != nil {
		return fmt.Errorf("failed to read subscription: %w", err)
	}
	if id == nil {
		return nil
	}
	if err := p.store.Delete(ctx, store.DomainPush, keyPrefix+string(id)); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if err := p.store.Delete(ctx, store.DomainPush, keyCurrent); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// Lookup returns the decrypted registration for id.
func (p *Platform) Lookup(ctx context.Context, id string) (*Registration, error) {
	rec, err := p.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrUnknownSubscription
	}
	if _, err := p.codec.InitializeKey(ctx); err != nil {
		return nil, err
	}

	plain, err := p.codec.Decrypt(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt subscription key: %w", err)
	}
	privBytes, err := unb64(plain)
	if err != nil {
		return nil, fmt.Errorf("corrupt subscription key: %w", err)
	}
	priv, err := ecdh.P256().NewPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("corrupt subscription key: %w", err)
	}
	auth, err := unb64(rec.Auth)
	if err != nil {
		return nil, fmt.Errorf("corrupt auth secret: %w", err)
	}
	asKey, err := unb64(rec.ApplicationServerKey)
	if err != nil {
		return nil, fmt.Errorf("corrupt application server key: %w", err)
	}

	return &Registration{
		ID:                   rec.ID,
		Endpoint:             rec.Endpoint,
		PrivateKey:           priv,
		Auth:                 auth,
		ApplicationServerKey: asKey,
	}, nil
}

func (p *Platform) current(ctx context.Context) (*record, error) {
	id, err := p.store.Get(ctx, store.DomainPush, keyCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if id == nil {
		return nil, nil
	}
	return p.load(ctx, string(id))
}

func (p *Platform) load(ctx context.Context, id string) (*record, error) {
	raw, err := p.store.Get(ctx, store.DomainPush, keyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("corrupt subscription record: %w", err)
	}
	return &rec, nil
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// unb64 accepts URL-safe base64 with or without padding.
func unb64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
