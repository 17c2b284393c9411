package worker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type recordingRegistrar struct {
	names []string
	err   error
}

func (r *recordingRegistrar) RegisterIntent(_ context.Context, name string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.names = append(r.names, name)
	return len(r.names) == 1, nil
}

var errOffline = errors.New("dial tcp: connection refused")

func offline(*http.Request) (*http.Response, error) { return nil, errOffline }

func TestInterceptor_QueuesFailedBeat(t *testing.T) {
	reg := &recordingRegistrar{}
	client := &http.Client{Transport: &FetchTransport{
		Fetch: NewInterceptor(reg, logging.Nop()).Intercept,
		Next:  roundTripFunc(offline),
	}}

	resp, err := client.Post("http://beat.example"+common.BeatPath, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(api.QueuedHeader))
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, queuedBody, string(body))
	assert.Equal(t, []string{common.SyncTagHeartbeat}, reg.names)
}

func TestInterceptor_PassesThrough(t *testing.T) {
	reg := &recordingRegistrar{}
	i := NewInterceptor(reg, logging.Nop())

	// other paths keep their error
	req, _ := http.NewRequest(http.MethodPost, "http://beat.example"+common.PushSubscribePath, nil)
	_, err := i.Intercept(req, roundTripFunc(offline))
	assert.ErrorIs(t, err, errOffline)

	// successful responses are untouched
	ok := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Request: r}, nil
	})
	req, _ = http.NewRequest(http.MethodPost, "http://beat.example"+common.BeatPath, nil)
	resp, err := i.Intercept(req, ok)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Empty(t, reg.names)
}

func TestInterceptor_RegistrationFailureKeepsError(t *testing.T) {
	reg := &recordingRegistrar{err: common.ErrStorageUnavailable}
	req, _ := http.NewRequest(http.MethodPost, "http://beat.example"+common.BeatPath, nil)

	_, err := NewInterceptor(reg, logging.Nop()).Intercept(req, roundTripFunc(offline))
	assert.ErrorIs(t, err, errOffline)
}

func TestInterceptor_ClientSeesQueued(t *testing.T) {
	reg := &recordingRegistrar{}
	c := api.New(0, api.WithTransport(&FetchTransport{
		Fetch: NewInterceptor(reg, logging.Nop()).Intercept,
		Next:  roundTripFunc(offline),
	}))

	err := c.Beat(context.Background(), api.Target{ServerURL: "http://beat.example", AuthToken: "t"})
	assert.ErrorIs(t, err, api.ErrQueued)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}
