package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
)

const queuedBody = `{"error":"offline","queued":true}`

type IntentRegistrar interface {
	RegisterIntent(ctx context.Context, name string) (bool, error)
}

// Interceptor turns a network failure of a heartbeat POST into a queued
// retry intent and a synthetic 503 marked with api.QueuedHeader. Other
// requests pass through untouched.
type Interceptor struct {
	intents IntentRegistrar
	logger  logging.Logger
}

func NewInterceptor(intents IntentRegistrar, logger logging.Logger) *Interceptor {
	return &Interceptor{intents: intents, logger: logger}
}

func (i *Interceptor) Intercept(req *http.Request, next http.RoundTripper) (*http.Response, error) {
	resp, err := next.RoundTrip(req)
	if err == nil || req.Method != http.MethodPost || !strings.HasSuffix(req.URL.Path, common.BeatPath) {
		return resp, err
	}

	ctx := context.WithoutCancel(req.Context())
	if _, rerr := i.intents.RegisterIntent(ctx, common.SyncTagHeartbeat); rerr != nil {
		i.logger.Warn(ctx, "failed to queue heartbeat for background retry", "error", rerr)
		return nil, err
	}
	i.logger.Info(ctx, "heartbeat request failed, queued for background sync", "error", err)

	return &http.Response{
		Status:        "503 Service Unavailable",
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"application/json"}, api.QueuedHeader: {"1"}},
		Body:          io.NopCloser(bytes.NewReader([]byte(queuedBody))),
		ContentLength: int64(len(queuedBody)),
		Request:       req,
	}, nil
}

// FetchTransport routes every request of an http.Client through a fetch
// handler.
type FetchTransport struct {
	Fetch func(req *http.Request, next http.RoundTripper) (*http.Response, error)
	Next  http.RoundTripper
}

func (t *FetchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return t.Fetch(req, next)
}
