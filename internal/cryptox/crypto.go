// Package cryptox encrypts the secret configuration fields before they are
// written to the durable store.
//
// Blobs are base64(nonce || AES-256-GCM ciphertext) with a fresh 12-byte
// nonce per call. The 32-byte key is generated on first use and persisted
// through a KeyStore; losing it makes old blobs unreadable, which callers
// treat as an empty secret.
package cryptox

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
)

const KeySize = 32

var (
	ErrDecryptionFailed  = common.ErrDecryptionFailed
	ErrKeyNotInitialized = errors.New("encryption key not initialized")
)

// KeyStore persists the symmetric key. StoreKeyIfAbsent must keep an
// existing key and return whatever ends up stored.
type KeyStore interface {
	LoadKey(ctx context.Context) ([]byte, error)
	StoreKeyIfAbsent(ctx context.Context, key []byte) ([]byte, error)
	ReplaceKey(ctx context.Context, key []byte) error
}

// Codec owns the process's copy of the key.
type Codec struct {
	keys   KeyStore
	logger logging.Logger

	mu  sync.Mutex
	key []byte
}

func NewCodec(keys KeyStore, logger logging.Logger) *Codec {
	return &Codec{keys: keys, logger: logger}
}

// InitializeKey loads the persisted key or generates and persists a new
// one. Later calls return the cached key.
func (c *Codec) InitializeKey(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.key != nil {
		return c.key, nil
	}

	key, err := c.keys.LoadKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}

	switch {
	case key == nil:
		key, err = c.keys.StoreKeyIfAbsent(ctx, common.GenerateRandByteArray(KeySize))
		if err != nil {
			return nil, fmt.Errorf("failed to store encryption key: %w", err)
		}
		c.logger.Info(ctx, "generated new encryption key")
	case len(key) != KeySize:
		c.logger.Warn(ctx, "stored encryption key is unusable, generating a new one", "length", len(key))
		key = common.GenerateRandByteArray(KeySize)
		if err := c.keys.ReplaceKey(ctx, key); err != nil {
			return nil, fmt.Errorf("failed to replace encryption key: %w", err)
		}
	}

	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key has length %d", len(key))
	}
	c.key = key
	return key, nil
}

func (c *Codec) currentKey() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == nil {
		return nil, ErrKeyNotInitialized
	}
	return c.key, nil
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	key, err := c.currentKey()
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, key)
}

func (c *Codec) Decrypt(blob string) (string, error) {
	key, err := c.currentKey()
	if err != nil {
		return "", err
	}
	return Decrypt(blob, key)
}

// Encrypt seals plaintext with key. The empty string stays empty.
func Encrypt(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := common.GenerateRandByteArray(gcm.NonceSize())
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any problem with the blob or
// the key yields ErrDecryptionFailed.
func Decrypt(blob string, key []byte) (string, error) {
	if blob == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	if len(raw) < gcm.NonceSize()+gcm.Overhead() {
		return "", fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
