// Package mirror keeps a plain JSON copy of the non-sensitive settings next
// to the database so they can be shown before the store and the encryption
// key are ready. The mirror is a cache: the durable store stays
// authoritative and secrets are never written here.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

const (
	keyServerURL         = "server_url"
	keyDeviceName        = "device_name"
	keyEnabled           = "enabled"
	keyActivityDetection = "activity_detection"
	keyPushEnabled       = "push_enabled"
)

type Mirror struct {
	path string
	mu   sync.Mutex
}

// New returns a mirror stored at path, which must end in ".json".
func New(path string) (*Mirror, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("mirror file %q must have a .json extension", path)
	}
	return &Mirror{path: filepath.Clean(path)}, nil
}

func (m *Mirror) Path() string { return m.path }

// Load reads the mirrored fields. ok is false when the file does not exist
// yet; the returned settings then hold the defaults. Secrets are always empty.
func (m *Mirror) Load() (s models.Settings, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(m.path)
	v.SetConfigType("json")
	v.SetDefault(keyDeviceName, common.DefaultDeviceName)
	v.SetDefault(keyActivityDetection, true)

	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		return models.DefaultSettings(), false, nil
	}
	if err := v.ReadInConfig(); err != nil {
		return models.DefaultSettings(), false, fmt.Errorf("failed to read mirror %s: %w", m.path, err)
	}

	return models.Settings{
		ServerURL:         v.GetString(keyServerURL),
		DeviceName:        v.GetString(keyDeviceName),
		Enabled:           v.GetBool(keyEnabled),
		ActivityDetection: v.GetBool(keyActivityDetection),
		PushEnabled:       v.GetBool(keyPushEnabled),
	}, true, nil
}

// Save replaces the mirror with the non-sensitive fields of s.
func (m *Mirror) Save(s models.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := viper.New()
	v.SetConfigType("json")
	v.Set(keyServerURL, s.ServerURL)
	v.Set(keyDeviceName, s.DeviceName)
	v.Set(keyEnabled, s.Enabled)
	v.Set(keyActivityDetection, s.ActivityDetection)
	v.Set(keyPushEnabled, s.PushEnabled)

	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}
	tmp := strings.TrimSuffix(m.path, filepath.Ext(m.path)) + ".partial.json"
	if err := v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("failed to write mirror: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("failed to replace mirror: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the mirror file is written or replaced,
// until ctx is cancelled. The parent directory is watched so that atomic
// replacements are seen.
func (m *Mirror) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(m.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != m.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("mirror watcher: %w", err)
		}
	}
}
