package common

import "errors"

var (
	// persistence
	ErrStorageUnavailable = errors.New("storage unavailable")

	// secrets
	ErrDecryptionFailed = errors.New("decryption failed")

	// delivery
	ErrNotConfigured  = errors.New("heartbeat not configured")
	ErrUnavailable    = errors.New("server unavailable")
	ErrDeliveryFailed = errors.New("delivery failed")

	// push
	ErrSubscriptionInvalid = errors.New("push subscription invalid")
	ErrSubscriptionExpired = errors.New("push subscription expired")
	ErrNoVAPIDKey          = errors.New("vapid public key is not configured")
)
