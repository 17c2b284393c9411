package push

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	saltSize       = 16
	headerFixed    = saltSize + 4 + 1
	recordDelim    = 0x02
	maxMessageSize = 4096
)

var ErrMalformedMessage = errors.New("malformed push message")

// Decrypt opens an aes128gcm message addressed to reg (RFC 8291 with the
// RFC 8188 single-record framing).
func Decrypt(reg *Registration, body []byte) ([]byte, error) {
	if len(body) < headerFixed {
		return nil, fmt.Errorf("%w: short header", ErrMalformedMessage)
	}
	salt := body[:saltSize]
	rs := binary.BigEndian.Uint32(body[saltSize : saltSize+4])
	idLen := int(body[saltSize+4])
	if len(body) < headerFixed+idLen {
		return nil, fmt.Errorf("%w: short key id", ErrMalformedMessage)
	}
	senderKey := body[headerFixed : headerFixed+idLen]
	ciphertext := body[headerFixed+idLen:]
	if rs < 18 || uint32(len(ciphertext)) > rs {
		return nil, fmt.Errorf("%w: record size %d", ErrMalformedMessage, rs)
	}

	asPub, err := ecdh.P256().NewPublicKey(senderKey)
	if err != nil {
		return nil, fmt.Errorf("%w: sender key: %v", ErrMalformedMessage, err)
	}
	secret, err := reg.PrivateKey.ECDH(asPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	uaPub := reg.PrivateKey.PublicKey().Bytes()
	plain, err := open(secret, reg.Auth, uaPub, senderKey, salt, ciphertext)
	if err != nil && secret[0] == 0 {
		// some senders drop leading zero bytes of the shared secret
		plain, err = open(bytes.TrimLeft(secret, "\x00"), reg.Auth, uaPub, senderKey, salt, ciphertext)
	}
	if err != nil {
		return nil, err
	}
	return unpad(plain)
}

func open(secret, auth, uaPub, asPub, salt, ciphertext []byte) ([]byte, error) {
	info := append([]byte("WebPush: info\x00"), uaPub...)
	info = append(info, asPub...)
	ikm, err := derive(secret, auth, info, 32)
	if err != nil {
		return nil, err
	}
	cek, err := derive(ikm, salt, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	nonce, err := derive(ikm, salt, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return plain, nil
}

func derive(secret, salt, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}

// unpad strips the zero padding and the last-record delimiter.
func unpad(plain []byte) ([]byte, error) {
	i := len(plain) - 1
	for i >= 0 && plain[i] == 0 {
		i--
	}
	if i < 0 || plain[i] != recordDelim {
		return nil, fmt.Errorf("%w: missing record delimiter", ErrMalformedMessage)
	}
	return plain[:i], nil
}
