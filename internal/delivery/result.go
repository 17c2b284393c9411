// Package delivery orders the ways a heartbeat can reach the server. A Chain
// tries its strategies in sequence and stops at the first success or the
// first failure that retrying cannot fix.
package delivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophbeat/internal/api"
	"github.com/dmitrijs2005/gophbeat/internal/common"
)

type Outcome int

const (
	Success Outcome = iota
	Retryable
	Permanent
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Result describes one delivery attempt.
type Result struct {
	Outcome    Outcome
	Strategy   string
	StatusCode int
	Err        error
	// Queued is set once a retry intent exists for the beat.
	Queued bool
	// Gone is set when the server reports the registration as stale
	// (404 or 410). It is never set for transport failures.
	Gone bool
}

func (r Result) OK() bool { return r.Outcome == Success }

// Classify turns the error of a delivery call into a Result.
func Classify(err error) Result {
	if err == nil {
		return Result{Outcome: Success}
	}
	if code, ok := api.StatusCode(err); ok {
		r := Result{StatusCode: code, Err: err}
		switch {
		case code == http.StatusNotFound || code == http.StatusGone:
			r.Outcome, r.Gone = Permanent, true
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
			r.Outcome = Retryable
		default:
			r.Outcome = Permanent
		}
		return r
	}
	if errors.Is(err, common.ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return Result{Outcome: Permanent, Err: err}
	}
	return Result{Outcome: Retryable, Err: err}
}
