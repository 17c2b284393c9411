package delivery

import (
	"context"

	"github.com/dmitrijs2005/gophbeat/internal/api"
)

// Strategy is one way of getting a heartbeat to the server.
type Strategy interface {
	Name() string
	Deliver(ctx context.Context, t api.Target) Result
}

type Chain struct {
	strategies []Strategy
}

func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Report lists every attempt a chain made, in order.
type Report struct {
	Attempts []Result
}

// Final is the last attempt, or a zero Permanent result for an empty chain.
func (r Report) Final() Result {
	if len(r.Attempts) == 0 {
		return Result{Outcome: Permanent}
	}
	return r.Attempts[len(r.Attempts)-1]
}

// First is the attempt that actually talked to the server.
func (r Report) First() Result {
	if len(r.Attempts) == 0 {
		return Result{Outcome: Permanent}
	}
	return r.Attempts[0]
}

func (r Report) Delivered() bool { return r.Final().OK() }

func (r Report) Queued() bool {
	for _, a := range r.Attempts {
		if a.Queued {
			return true
		}
	}
	return false
}

// Run tries each strategy until one succeeds or fails permanently.
func (c *Chain) Run(ctx context.Context, t api.Target) Report {
	var rep Report
	for _, s := range c.strategies {
		res := s.Deliver(ctx, t)
		res.Strategy = s.Name()
		rep.Attempts = append(rep.Attempts, res)
		if res.Outcome != Retryable {
			break
		}
	}
	return rep
}
