// Package api talks to the heartbeat server over HTTP.
//
// The client never retries on its own: a failed call is reported once and
// the caller's fallback chain decides what happens next. Transport failures
// wrap common.ErrUnavailable; non-2xx answers come back as *StatusError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

// QueuedHeader marks a synthetic response produced when the request was
// handed to the background worker instead of reaching the server.
const QueuedHeader = "X-Gophbeat-Queued"

var ErrQueued = errors.New("queued for background sync")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// StatusCode extracts the HTTP status from err, if it carries one.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// Target identifies the server and the device a request is made for.
type Target struct {
	ServerURL  string
	AuthToken  string
	DeviceName string
}

func TargetFrom(s models.Settings) Target {
	return Target{ServerURL: s.ServerURL, AuthToken: s.AuthToken, DeviceName: s.DeviceName}
}

type Client struct {
	httpClient *http.Client
	userAgent  string
}

type Option func(*Client)

// WithTransport routes requests through rt instead of the default transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client whose calls give up after timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Beat posts an empty heartbeat to /api/beat.
func (c *Client) Beat(ctx context.Context, t Target) error {
	return c.post(ctx, t, common.BeatPath, nil)
}

func (c *Client) PushSubscribe(ctx context.Context, t Target, sub models.Subscription) error {
	encoding := sub.Encoding
	if encoding == "" {
		encoding = models.DefaultPushEncoding
	}
	return c.post(ctx, t, common.PushSubscribePath, models.SubscribeRequest{
		Endpoint:   sub.Endpoint,
		Keys:       sub.Keys,
		Encoding:   encoding,
		DeviceName: t.DeviceName,
	})
}

func (c *Client) PushUnsubscribe(ctx context.Context, t Target, endpoint string) error {
	return c.post(ctx, t, common.PushUnsubscribePath, models.UnsubscribeRequest{
		Endpoint:   endpoint,
		DeviceName: t.DeviceName,
	})
}

// Ping checks that the server answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context, serverURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, strings.TrimRight(serverURL, "/")+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	_ = resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, t Target, path string, body any) error {
	if t.ServerURL == "" {
		return common.ErrNotConfigured
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.ServerURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set(common.AuthHeaderName, t.AuthToken)
	req.Header.Set(common.DeviceHeaderName, t.DeviceName)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.Header.Get(QueuedHeader) != "" {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, ErrQueued)
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
}
