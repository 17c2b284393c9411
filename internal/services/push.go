package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// PushPlatform owns the local push endpoint registration.
type PushPlatform interface {
	Subscription(ctx context.Context) (*models.Subscription, error)
	Subscribe(ctx context.Context, applicationServerKey []byte) (*models.Subscription, error)
	Unsubscribe(ctx context.Context) error
}

type PushAPI interface {
	PushSubscribe(ctx context.Context, t api.Target, sub models.Subscription) error
	PushUnsubscribe(ctx context.Context, t api.Target, endpoint string) error
}

type SettingsUpdater interface {
	Load(ctx context.Context) models.Settings
	Update(ctx context.Context, fn func(*models.Settings)) (models.Settings, error)
}

var errInvalidVAPIDKey = errors.New("invalid vapid public key")

// PushManager enables and disables server-initiated heartbeat checks.
type PushManager struct {
	platform PushPlatform
	api      PushAPI
	settings SettingsUpdater
	journal  *Journal
	logger   logging.Logger
}

func NewPushManager(platform PushPlatform, client PushAPI, settings SettingsUpdater, journal *Journal, logger logging.Logger) *PushManager {
	return &PushManager{platform: platform, api: client, settings: settings, journal: journal, logger: logger}
}

// Subscribe obtains a complete subscription and registers it with the
// server. Only a subscription carrying both keys is ever transmitted, and
// pushEnabled is set only after the server accepted it.
func (p *PushManager) Subscribe(ctx context.Context) (*models.Subscription, error) {
	s := p.settings.Load(ctx)
	if s.VAPIDPublicKey == "" {
		return nil, common.ErrNoVAPIDKey
	}
	if s.ServerURL == "" || s.AuthToken == "" {
		return nil, common.ErrNotConfigured
	}
	key, err := DecodeApplicationServerKey(s.VAPIDPublicKey)
	if err != nil {
		return nil, err
	}

	sub, err := p.platform.Subscription(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read push subscription: %w", err)
	}
	if sub != nil && !sub.Valid() {
		p.journal.Record(ctx, "Existing push subscription is incomplete, recreating")
		if err := p.platform.Unsubscribe(ctx); err != nil {
			return nil, fmt.Errorf("failed to drop incomplete subscription: %w", err)
		}
		sub = nil
	}
	if sub == nil {
		sub, err = p.platform.Subscribe(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to create push subscription: %w", err)
		}
	}
	if !sub.Valid() {
		if err := p.platform.Unsubscribe(ctx); err != nil {
			p.logger.Warn(ctx, "failed to drop incomplete subscription", "error", err)
		}
		return nil, common.ErrSubscriptionInvalid
	}
	if sub.Encoding == "" {
		sub.Encoding = models.DefaultPushEncoding
	}

	if err := p.api.PushSubscribe(ctx, api.TargetFrom(s), *sub); err != nil {
		p.journal.Record(ctx, "Failed to enable server checks", "error", err)
		return nil, fmt.Errorf("failed to register push subscription: %w", err)
	}

	if _, err := p.settings.Update(ctx, func(s *models.Settings) { s.PushEnabled = true }); err != nil {
		p.logger.Warn(ctx, "push subscription registered but setting not saved", "error", err)
	}
	p.journal.Record(ctx, "Server checks enabled")
	return sub, nil
}

// Unsubscribe drops the local subscription and tells the server. Failures
// along the way are logged; pushEnabled is cleared regardless.
func (p *PushManager) Unsubscribe(ctx context.Context) error {
	s := p.settings.Load(ctx)

	sub, err := p.platform.Subscription(ctx)
	if err != nil {
		p.logger.Warn(ctx, "failed to read push subscription", "error", err)
	}
	if sub != nil {
		if err := p.platform.Unsubscribe(ctx); err != nil {
			p.logger.Warn(ctx, "failed to drop push subscription", "error", err)
		}
		if s.ServerURL != "" {
			if err := p.api.PushUnsubscribe(ctx, api.TargetFrom(s), sub.Endpoint); err != nil {
				p.journal.Record(ctx, "Failed to notify server about unsubscribe", "error", err)
			}
		}
	}

	if _, err := p.settings.Update(ctx, func(s *models.Settings) { s.PushEnabled = false }); err != nil {
		return fmt.Errorf("failed to save push setting: %w", err)
	}
	p.journal.Record(ctx, "Server checks disabled")
	return nil
}

// HandleExpired cleans up after the server reported the subscription gone.
// The server already forgot it, so it is not contacted.
func (p *PushManager) HandleExpired(ctx context.Context) {
	if err := p.platform.Unsubscribe(ctx); err != nil {
		p.logger.Warn(ctx, "failed to drop expired push subscription", "error", err)
	}
	if _, err := p.settings.Update(ctx, func(s *models.Settings) { s.PushEnabled = false }); err != nil {
		p.logger.Warn(ctx, "failed to clear push setting", "error", err)
	}
	p.journal.Record(ctx, "Push subscription expired, please re-enable server checks")
}

// DecodeApplicationServerKey decodes a URL-safe base64 VAPID public key,
// with or without padding, and checks it is an uncompressed P-256 point.
func DecodeApplicationServerKey(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.NewReplacer("-", "+", "_", "/").Replace(text)
	if pad := len(text) % 4; pad != 0 {
		text += strings.Repeat("=", 4-pad)
	}
	key, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidVAPIDKey, err)
	}
	if len(key) != 65 || key[0] != 0x04 {
		return nil, fmt.Errorf("%w: want 65-byte uncompressed point, got %d bytes", errInvalidVAPIDKey, len(key))
	}
	return key, nil
}
