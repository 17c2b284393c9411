package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
)

var ErrUnauthorized = errors.New("invalid vapid authorization")

// Handler receives the decrypted payload of an accepted push message.
type Handler func(ctx context.Context, payload []byte) error

type Registry interface {
	Lookup(ctx context.Context, id string) (*Registration, error)
}

// Receiver accepts push messages on POST /push/{id}.
type Receiver struct {
	registry Registry
	handle   Handler
	logger   logging.Logger
	audience string

	wg sync.WaitGroup
}

// NewReceiver builds a receiver for subscriptions whose endpoints start with
// baseURL. VAPID tokens must name the origin of baseURL as their audience.
func NewReceiver(registry Registry, baseURL string, handle Handler, logger logging.Logger) (*Receiver, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid push base url %q", baseURL)
	}
	return &Receiver{
		registry: registry,
		handle:   handle,
		logger:   logger,
		audience: u.Scheme + "://" + u.Host,
	}, nil
}

func (rc *Receiver) Mount(r chi.Router) {
	r.Post("/push/{id}", rc.ServeHTTP)
}

func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	reg, err := rc.registry.Lookup(ctx, id)
	switch {
	case errors.Is(err, ErrUnknownSubscription):
		http.Error(w, "subscription expired", http.StatusGone)
		return
	case err != nil:
		rc.logger.Error(ctx, "failed to load push subscription", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := rc.authorize(r.Header.Get("Authorization"), reg.ApplicationServerKey); err != nil {
		rc.logger.Warn(ctx, "rejected push message", "id", id, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if enc := r.Header.Get("Content-Encoding"); !strings.EqualFold(enc, "aes128gcm") {
		http.Error(w, "unsupported content encoding", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize+1))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if len(body) > maxMessageSize {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	payload, err := Decrypt(reg, body)
	if err != nil {
		rc.logger.Warn(ctx, "failed to decrypt push message", "id", id, "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)

	if rc.handle == nil {
		return
	}
	// the push service only waits for the 201
	hctx := context.WithoutCancel(ctx)
	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		if err := rc.handle(hctx, payload); err != nil {
			rc.logger.Warn(hctx, "push handler failed", "id", id, "error", err)
		}
	}()
}

// Wait blocks until the handlers of accepted messages have returned.
func (rc *Receiver) Wait() {
	rc.wg.Wait()
}

// authorize checks an "vapid t=<jwt>, k=<key>" header against the key the
// subscription was created for.
func (rc *Receiver) authorize(header string, want []byte) error {
	token, key, err := parseVAPID(header)
	if err != nil {
		return err
	}
	raw, err := unb64(key)
	if err != nil {
		return fmt.Errorf("%w: bad key encoding", ErrUnauthorized)
	}
	if subtle.ConstantTimeCompare(raw, want) != 1 {
		return fmt.Errorf("%w: key does not match subscription", ErrUnauthorized)
	}

	//nolint:staticcheck // uncompressed point decoding for ecdsa
	x, y := elliptic.Unmarshal(elliptic.P256(), raw)
	if x == nil {
		return fmt.Errorf("%w: key is not a P-256 point", ErrUnauthorized)
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	_, err = jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(rc.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return nil
}

func parseVAPID(header string) (token, key string, err error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "vapid") {
		return "", "", fmt.Errorf("%w: missing vapid scheme", ErrUnauthorized)
	}
	for _, part := range strings.Split(rest, ",") {
		k, v, _ := strings.Cut(strings.TrimSpace(part), "=")
		switch k {
		case "t":
			token = v
		case "k":
			key = v
		}
	}
	if token == "" || key == "" {
		return "", "", fmt.Errorf("%w: incomplete vapid header", ErrUnauthorized)
	}
	return token, key, nil
}
