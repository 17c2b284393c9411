package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/store"
)

const (
	settingsKey   = "settings"
	permissionKey = "notificationPermission"
	granted       = "granted"
)

// KVStore is the subset of the durable store used for small records.
type KVStore interface {
	Get(ctx context.Context, domain, key string) ([]byte, error)
	Put(ctx context.Context, domain, key string, value []byte) error
	Update(ctx context.Context, domain, key string, fn func(current []byte) ([]byte, error)) error
}

// SecretCodec encrypts secret settings fields with the device key.
type SecretCodec interface {
	InitializeKey(ctx context.Context) ([]byte, error)
	Encrypt(plaintext string) (string, error)
	Decrypt(blob string) (string, error)
}

// SettingsMirror is the non-secret, human-readable copy of the settings.
type SettingsMirror interface {
	Load() (models.Settings, bool, error)
	Save(s models.Settings) error
}

// storedSettings is the durable form of models.Settings. The Encrypted flags
// are false only for records written before secrets were encrypted.
type storedSettings struct {
	ServerURL          string `json:"serverUrl"`
	AuthToken          string `json:"authToken"`
	AuthTokenEncrypted bool   `json:"authTokenEncrypted"`
	DeviceName         string `json:"deviceName"`
	VAPIDPublicKey     string `json:"vapidPublicKey"`
	VAPIDKeyEncrypted  bool   `json:"vapidKeyEncrypted"`
	Enabled            bool   `json:"enabled"`
	ActivityDetection  bool   `json:"activityDetection"`
	PushEnabled        bool   `json:"pushEnabled"`
}

// SettingsManager loads and saves models.Settings. The store record is
// authoritative; the mirror is used when the store has nothing or fails.
type SettingsManager struct {
	store  KVStore
	codec  SecretCodec
	mirror SettingsMirror
	logger logging.Logger
}

func NewSettingsManager(kv KVStore, codec SecretCodec, mirror SettingsMirror, logger logging.Logger) *SettingsManager {
	return &SettingsManager{store: kv, codec: codec, mirror: mirror, logger: logger}
}

// Load never fails. Secrets that cannot be decrypted come back empty so the
// user is asked to enter them again.
func (m *SettingsManager) Load(ctx context.Context) models.Settings {
	_, keyErr := m.codec.InitializeKey(ctx)
	if keyErr != nil {
		m.logger.Error(ctx, "failed to initialize encryption key", "error", keyErr)
	}

	s := m.mirrored(ctx)

	raw, err := m.store.Get(ctx, store.DomainConfiguration, settingsKey)
	if err != nil {
		m.logger.Warn(ctx, "settings store unavailable, using mirrored settings", "error", err)
		return s
	}
	if raw == nil {
		return s
	}

	var st storedSettings
	if err := json.Unmarshal(raw, &st); err != nil {
		m.logger.Warn(ctx, "stored settings are corrupt, using mirrored settings", "error", err)
		return s
	}
	return m.open(ctx, st, keyErr)
}

// mirrored returns the mirror copy, or the defaults when there is none.
func (m *SettingsManager) mirrored(ctx context.Context) models.Settings {
	s := models.DefaultSettings()
	if m.mirror == nil {
		return s
	}
	mirrored, ok, err := m.mirror.Load()
	switch {
	case err != nil:
		m.logger.Warn(ctx, "failed to read settings mirror", "error", err)
	case ok:
		s = mirrored
	}
	return s
}

// open turns a stored record into settings with the secrets decrypted.
func (m *SettingsManager) open(ctx context.Context, st storedSettings, keyErr error) models.Settings {
	s := st.plain()
	s.AuthToken = m.reveal(ctx, "authToken", st.AuthToken, st.AuthTokenEncrypted, keyErr)
	s.VAPIDPublicKey = m.reveal(ctx, "vapidPublicKey", st.VAPIDPublicKey, st.VAPIDKeyEncrypted, keyErr)
	return s
}

// plain returns the record without its secrets.
func (st storedSettings) plain() models.Settings {
	s := models.Settings{
		ServerURL:         st.ServerURL,
		DeviceName:        st.DeviceName,
		Enabled:           st.Enabled,
		ActivityDetection: st.ActivityDetection,
		PushEnabled:       st.PushEnabled,
	}
	if s.DeviceName == "" {
		s.DeviceName = common.DefaultDeviceName
	}
	return s
}

func (st *storedSettings) setPlain(s models.Settings) {
	st.ServerURL = s.ServerURL
	st.DeviceName = s.DeviceName
	st.Enabled = s.Enabled
	st.ActivityDetection = s.ActivityDetection
	st.PushEnabled = s.PushEnabled
}

func (m *SettingsManager) reveal(ctx context.Context, field, value string, encrypted bool, keyErr error) string {
	if !encrypted || value == "" {
		return value
	}
	if keyErr != nil {
		return ""
	}
	plain, err := m.codec.Decrypt(value)
	if err != nil {
		m.logger.Warn(ctx, "failed to decrypt secret, it must be entered again", "field", field, "error", err)
		return ""
	}
	return plain
}

// Save encrypts the secrets and writes the record, then refreshes the mirror.
// A mirror failure is logged; a store failure is returned.
func (m *SettingsManager) Save(ctx context.Context, s models.Settings) error {
	if _, err := m.codec.InitializeKey(ctx); err != nil {
		return fmt.Errorf("failed to initialize encryption key: %w", err)
	}

	token, err := m.codec.Encrypt(s.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt auth token: %w", err)
	}
	vapid, err := m.codec.Encrypt(s.VAPIDPublicKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt vapid key: %w", err)
	}

	raw, err := json.Marshal(storedSettings{
		ServerURL:          s.ServerURL,
		AuthToken:          token,
		AuthTokenEncrypted: true,
		DeviceName:         s.DeviceName,
		VAPIDPublicKey:     vapid,
		VAPIDKeyEncrypted:  true,
		Enabled:            s.Enabled,
		ActivityDetection:  s.ActivityDetection,
		PushEnabled:        s.PushEnabled,
	})
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	storeErr := m.store.Put(ctx, store.DomainConfiguration, settingsKey, raw)
	if storeErr != nil {
		m.logger.Error(ctx, "failed to save settings", "error", storeErr)
	}

	if m.mirror != nil {
		if err := m.mirror.Save(s); err != nil {
			m.logger.Warn(ctx, "failed to write settings mirror", "error", err)
		}
	}

	if storeErr != nil {
		return fmt.Errorf("failed to save settings: %w", storeErr)
	}
	return nil
}

// Update applies fn to the non-secret fields inside one store transaction.
// The stored secrets are written back untouched, so fn cannot change them and
// an unreadable key never erases them; use Save to change a secret. Nothing
// is written when the record cannot be read.
func (m *SettingsManager) Update(ctx context.Context, fn func(*models.Settings)) (models.Settings, error) {
	var st storedSettings
	err := m.store.Update(ctx, store.DomainConfiguration, settingsKey, func(current []byte) ([]byte, error) {
		st = storedSettings{}
		if current == nil {
			st.setPlain(m.mirrored(ctx))
		} else if err := json.Unmarshal(current, &st); err != nil {
			return nil, fmt.Errorf("stored settings are corrupt: %w", err)
		}
		s := st.plain()
		fn(&s)
		st.setPlain(s)
		return json.Marshal(st)
	})
	if err != nil {
		m.logger.Error(ctx, "failed to update settings", "error", err)
		return models.Settings{}, fmt.Errorf("failed to update settings: %w", err)
	}

	_, keyErr := m.codec.InitializeKey(ctx)
	if keyErr != nil {
		m.logger.Error(ctx, "failed to initialize encryption key", "error", keyErr)
	}
	s := m.open(ctx, st, keyErr)
	if m.mirror != nil {
		if err := m.mirror.Save(s); err != nil {
			m.logger.Warn(ctx, "failed to write settings mirror", "error", err)
		}
	}
	return s, nil
}

// NotificationsPermitted reports whether the user granted notifications.
// An unreadable store counts as not granted.
func (m *SettingsManager) NotificationsPermitted(ctx context.Context) bool {
	raw, err := m.store.Get(ctx, store.DomainConfiguration, permissionKey)
	if err != nil {
		m.logger.Warn(ctx, "failed to read notification permission", "error", err)
		return false
	}
	return string(raw) == granted
}

func (m *SettingsManager) SetNotificationsPermitted(ctx context.Context, permitted bool) error {
	value := "denied"
	if permitted {
		value = granted
	}
	if err := m.store.Put(ctx, store.DomainConfiguration, permissionKey, []byte(value)); err != nil {
		return fmt.Errorf("failed to save notification permission: %w", err)
	}
	return nil
}

// IsStorageError reports whether err came from an unavailable store.
func IsStorageError(err error) bool {
	return errors.Is(err, common.ErrStorageUnavailable)
}
