package delivery

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/common"
)

type fakeSender struct {
	err   error
	calls int
	last  api.Target
}

func (f *fakeSender) Beat(_ context.Context, t api.Target) error {
	f.calls++
	f.last = t
	return f.err
}

type fakeIntents struct {
	names []string
	err   error
	seen  map[string]bool
}

func (f *fakeIntents) RegisterIntent(_ context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.names = append(f.names, name)
	created := !f.seen[name]
	f.seen[name] = true
	return created, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
		gone    bool
		code    int
	}{
		{"nil", nil, Success, false, 0},
		{"500", &api.StatusError{StatusCode: 500}, Retryable, false, 500},
		{"503", &api.StatusError{StatusCode: 503}, Retryable, false, 503},
		{"429", &api.StatusError{StatusCode: 429}, Retryable, false, 429},
		{"408", &api.StatusError{StatusCode: 408}, Retryable, false, 408},
		{"404", &api.StatusError{StatusCode: 404}, Permanent, true, 404},
		{"410", &api.StatusError{StatusCode: 410}, Permanent, true, 410},
		{"401", &api.StatusError{StatusCode: 401}, Permanent, false, 401},
		{"wrapped status", fmt.Errorf("beat: %w", &api.StatusError{StatusCode: 410}), Permanent, true, 410},
		{"network", fmt.Errorf("%w: dial tcp", common.ErrUnavailable), Retryable, false, 0},
		{"unknown", errors.New("boom"), Retryable, false, 0},
		{"not configured", common.ErrNotConfigured, Permanent, false, 0},
		{"cancelled", context.Canceled, Permanent, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Classify(tt.err)
			assert.Equal(t, tt.outcome, r.Outcome)
			assert.Equal(t, tt.gone, r.Gone)
			assert.Equal(t, tt.code, r.StatusCode)
		})
	}
}

func TestChain_StopsOnSuccess(t *testing.T) {
	sender := &fakeSender{}
	intents := &fakeIntents{}
	chain := NewChain(NewImmediate(sender), NewDeferred(intents, common.SyncTagHeartbeat))

	rep := chain.Run(context.Background(), api.Target{ServerURL: "https://h.example"})

	assert.True(t, rep.Delivered())
	assert.False(t, rep.Queued())
	require.Len(t, rep.Attempts, 1)
	assert.Equal(t, "immediate", rep.Attempts[0].Strategy)
	assert.Empty(t, intents.names)
	assert.Equal(t, "https://h.example", sender.last.ServerURL)
}

func TestChain_RetryableFailureQueuesIntent(t *testing.T) {
	sender := &fakeSender{err: &api.StatusError{StatusCode: 500}}
	intents := &fakeIntents{}
	chain := NewChain(NewImmediate(sender), NewDeferred(intents, common.SyncTagHeartbeat))

	rep := chain.Run(context.Background(), api.Target{})

	assert.False(t, rep.Delivered())
	assert.True(t, rep.Queued())
	require.Len(t, rep.Attempts, 2)
	assert.Equal(t, 500, rep.First().StatusCode)
	assert.Equal(t, "deferred:send-heartbeat", rep.Final().Strategy)
	assert.Equal(t, []string{"send-heartbeat"}, intents.names)
}

func TestChain_PermanentFailureDoesNotQueue(t *testing.T) {
	sender := &fakeSender{err: &api.StatusError{StatusCode: 401}}
	intents := &fakeIntents{}
	chain := NewChain(NewImmediate(sender), NewDeferred(intents, common.SyncTagHeartbeat))

	rep := chain.Run(context.Background(), api.Target{})

	assert.False(t, rep.Queued())
	require.Len(t, rep.Attempts, 1)
	assert.Equal(t, Permanent, rep.Final().Outcome)
	assert.Empty(t, intents.names)
}

func TestChain_QueueFailureIsReported(t *testing.T) {
	sender := &fakeSender{err: common.ErrUnavailable}
	intents := &fakeIntents{err: common.ErrStorageUnavailable}

	rep := NewChain(NewImmediate(sender), NewDeferred(intents, "x")).Run(context.Background(), api.Target{})

	assert.False(t, rep.Queued())
	require.ErrorIs(t, rep.Final().Err, common.ErrStorageUnavailable)
}

func TestReport_Empty(t *testing.T) {
	var rep Report
	assert.Equal(t, Permanent, rep.Final().Outcome)
	assert.Equal(t, Permanent, rep.First().Outcome)
	assert.False(t, rep.Delivered())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "retryable", Retryable.String())
	assert.Equal(t, "permanent", Permanent.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
