// Package app wires the components both processes share: the store, the
// settings, the beat pipeline, the notification gate, the push platform and
// the message channel.
package app

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/channel"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/config"
	"github.com/dmitrijs2005/gophbeat/internal/cryptox"
	"github.com/dmitrijs2005/gophbeat/internal/delivery"
	"github.com/dmitrijs2005/gophbeat/internal/filex"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/mirror"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/notify"
	"github.com/dmitrijs2005/gophbeat/internal/push"
	"github.com/dmitrijs2005/gophbeat/internal/services"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

// Options select what differs between the two processes.
type Options struct {
	Role      models.PeerRole
	UserAgent string
	Notifier  services.Notifier
	// Transport, when set, wraps the HTTP transport of the API client.
	Transport func(st *store.Store, next http.RoundTripper) http.RoundTripper
}

type App struct {
	Config *config.Config
	Logger logging.Logger

	Store       *store.Store
	Codec       *cryptox.Codec
	Mirror      *mirror.Mirror
	Settings    *services.SettingsManager
	Journal     *services.Journal
	Client      *api.Client
	Beater      *services.Beater
	Gate        *services.NotificationGate
	Platform    *push.Platform
	Push        *services.PushManager
	Validator   *channel.Validator
	Broadcaster *channel.Broadcaster
}

func New(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (*App, error) {
	if _, err := filex.EnsureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	if err := filex.EnsureParent(cfg.DatabasePath); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DatabasePath,
		store.WithLogger(logger.With("module", "store")),
		store.WithLogRetention(cfg.MaxLogEntries, store.DefaultPruneChance),
	)
	if err != nil {
		return nil, err
	}

	mir, err := mirror.New(cfg.MirrorPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	validator, err := channel.NewValidator()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog(logger.With("module", "notify"))
	}

	var transport http.RoundTripper = http.DefaultTransport
	if opts.Transport != nil {
		transport = opts.Transport(st, transport)
	}
	clientOpts := []api.Option{api.WithTransport(transport)}
	if opts.UserAgent != "" {
		clientOpts = append(clientOpts, api.WithUserAgent(opts.UserAgent))
	}
	client := api.New(cfg.RequestTimeout, clientOpts...)

	codec := cryptox.NewCodec(st, logger.With("module", "cryptox"))
	settings := services.NewSettingsManager(st, codec, mir, logger.With("module", "settings"))
	journal := services.NewJournal(st, logger.With("module", "journal", "role", opts.Role))

	chain := delivery.NewChain(
		delivery.NewImmediate(client),
		delivery.NewDeferred(st, common.SyncTagHeartbeat),
	)
	beater := services.NewBeater(st, settings, chain, journal, logger.With("module", "beater"), cfg.IdleThreshold,
		services.WithLeaseTTL(cfg.RequestTimeout*2),
	)
	gate := services.NewNotificationGate(st, settings, notifier, logger.With("module", "gate"), cfg.NotificationWindow)

	platform := push.NewPlatform(st, codec, cfg.PushBaseURL)
	pm := services.NewPushManager(platform, client, settings, journal, logger.With("module", "push"))

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       st,
		Codec:       codec,
		Mirror:      mir,
		Settings:    settings,
		Journal:     journal,
		Client:      client,
		Beater:      beater,
		Gate:        gate,
		Platform:    platform,
		Push:        pm,
		Validator:   validator,
		Broadcaster: channel.NewBroadcaster(st, logger.With("module", "channel"), 0),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
