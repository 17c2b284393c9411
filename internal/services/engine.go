package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
)

type State string

const (
	StateDisabled   State = "disabled"
	StateMonitoring State = "monitoring"
	StateError      State = "error"
)

// Status is what the foreground shows to the user.
type Status struct {
	State       State
	Text        string
	LastSuccess time.Time
	BeatCount   int64
}

type BeatRunner interface {
	Beat(ctx context.Context, source models.Source) BeatResult
}

type GateNotifier interface {
	Notify(ctx context.Context, title, body string) bool
}

type CountReader interface {
	BeatCount(ctx context.Context) (int64, error)
}

// Engine drives foreground heartbeats on a fixed interval and keeps the
// displayed status.
type Engine struct {
	beater   BeatRunner
	gate     GateNotifier
	counter  CountReader
	logger   logging.Logger
	interval time.Duration

	mu       sync.Mutex
	status   Status
	cancel   context.CancelFunc
	done     chan struct{}
	onChange func(Status)
}

func NewEngine(beater BeatRunner, gate GateNotifier, counter CountReader, logger logging.Logger, interval time.Duration) *Engine {
	return &Engine{
		beater:   beater,
		gate:     gate,
		counter:  counter,
		logger:   logger,
		interval: interval,
		status:   Status{State: StateDisabled, Text: "Disabled"},
	}
}

// OnChange registers a callback invoked after every status change.
func (e *Engine) OnChange(fn func(Status)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// Start sends a beat right away and then one per interval until Stop.
// Calling Start on a running engine does nothing.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.status.State, e.status.Text = StateMonitoring, "Monitoring"
	st, cb := e.status, e.onChange
	e.mu.Unlock()
	notify(cb, st)

	go func() {
		defer close(done)
		if runCtx.Err() != nil {
			return
		}
		e.Tick(runCtx)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				// a tick may be pending alongside a Stop that landed mid-beat
				if runCtx.Err() != nil {
					return
				}
				e.Tick(runCtx)
			}
		}
	}()
}

// Stop cancels future ticks. A beat already on the wire is allowed to finish
// and be counted. Stop returns without waiting for it.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.status.State, e.status.Text = StateDisabled, "Disabled"
	st, cb := e.status, e.onChange
	e.mu.Unlock()
	notify(cb, st)
}

// Wait blocks until the tick loop started by the last Start has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Tick runs one foreground beat and updates the status.
func (e *Engine) Tick(ctx context.Context) BeatResult {
	res := e.beater.Beat(context.WithoutCancel(ctx), models.SourceForeground)
	e.apply(ctx, res)
	return res
}

func (e *Engine) apply(ctx context.Context, res BeatResult) {
	var title, body string

	e.mu.Lock()
	running := e.cancel != nil
	switch res.Status {
	case BeatSent:
		e.status.LastSuccess = res.At
		if res.Count > 0 {
			e.status.BeatCount = res.Count
		}
		if running {
			e.status.State, e.status.Text = StateMonitoring, "Connected"
		}
	case BeatFailed:
		first := res.Report.First()
		if first.StatusCode != 0 {
			title, body = "Heartbeat Failed", fmt.Sprintf("Server returned error: %d", first.StatusCode)
			if running {
				e.status.State, e.status.Text = StateError, fmt.Sprintf("Error: %d", first.StatusCode)
			}
		} else {
			title, body = "Connection Lost", "Unable to send heartbeat - check your connection"
			if running {
				e.status.State, e.status.Text = StateError, "Network error"
			}
		}
	default:
		e.mu.Unlock()
		return
	}
	st, cb := e.status, e.onChange
	e.mu.Unlock()

	notify(cb, st)
	if title != "" && e.gate != nil {
		e.gate.Notify(ctx, title, body)
	}
}

// SetOnline reflects connectivity changes while monitoring.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	if online {
		e.status.State, e.status.Text = StateMonitoring, "Monitoring"
	} else {
		e.status.State, e.status.Text = StateError, "Offline"
	}
	st, cb := e.status, e.onChange
	e.mu.Unlock()
	notify(cb, st)

	if e.gate == nil {
		return
	}
	if online {
		e.gate.Notify(ctx, "Connection Restored", "Heartbeat monitoring resumed")
	} else {
		e.gate.Notify(ctx, "Connection Lost", "Heartbeats will resume when online")
	}
}

// SetBeatCount applies a counter value reported by the other process.
// Values older than the displayed one are ignored.
func (e *Engine) SetBeatCount(count int64, at time.Time) {
	e.mu.Lock()
	if count > e.status.BeatCount {
		e.status.BeatCount = count
	}
	if at.After(e.status.LastSuccess) {
		e.status.LastSuccess = at
	}
	st, cb := e.status, e.onChange
	e.mu.Unlock()
	notify(cb, st)
}

// Refresh re-reads the counter from the store.
func (e *Engine) Refresh(ctx context.Context) error {
	n, err := e.counter.BeatCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to read beat count: %w", err)
	}
	e.mu.Lock()
	e.status.BeatCount = n
	st, cb := e.status, e.onChange
	e.mu.Unlock()
	notify(cb, st)
	return nil
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func notify(cb func(Status), st Status) {
	if cb != nil {
		cb(st)
	}
}
