// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wneessen/mylocations/internal/logger"
)

var ErrNoProviders = errors.New("no position providers configured")

// Orchestrator fans in the results of multiple providers and forwards them to a single
// Listener. It acts as the position source of an acquisition session.
//
// Non-transient provider errors only end the provider that reported them. The listener
// is informed once every provider of the run has failed.
type Orchestrator struct {
	logger    *logger.Logger
	providers []Provider

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator returns an Orchestrator for the given providers.
func NewOrchestrator(log *logger.Logger, providers ...Provider) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	return &Orchestrator{logger: log, providers: providers}, nil
}

// Name returns the combined names of all providers.
func (o *Orchestrator) Name() string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return "orchestrator(" + strings.Join(names, ",") + ")"
}

// Start begins tracking all providers and delivers their results to l. A running
// tracking run is stopped first. The run ends when ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context, accuracy float64, l Listener) error {
	if l == nil {
		return errors.New("listener is required")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	run := &trackingRun{ctx: runCtx, listener: l, remaining: int32(len(o.providers))}
	for _, p := range o.providers {
		o.wg.Add(1)
		go func(p Provider) {
			defer o.wg.Done()
			o.trackProvider(run, p, accuracy)
		}(p)
	}
	o.logger.Debug("position tracking started", slogProviders(o.providers), slogAccuracy(accuracy))
	return nil
}

// Stop ends the current tracking run. It does not wait for the provider goroutines, so
// a delivery racing with Stop may still reach the listener.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return
	}
	o.cancel()
	o.cancel = nil
	o.logger.Debug("position tracking stopped")
}

// Wait blocks until all provider goroutines of previous runs have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

type trackingRun struct {
	ctx       context.Context
	listener  Listener
	remaining int32
}

func (r *trackingRun) deliver(res Result, source string) {
	if r.ctx.Err() != nil {
		return
	}
	if res.Err != nil {
		r.listener.OnError(&PositionError{Source: source, Err: res.Err})
		return
	}
	if res.Reading.Source == "" {
		res.Reading.Source = source
	}
	r.listener.OnReading(res.Reading)
}

// trackProvider continuously tracks a Provider, forwarding its results and implementing
// backoff when the provider stream ends.
func (o *Orchestrator) trackProvider(run *trackingRun, p Provider, accuracy float64) {
	backoff := initialBackoff
	for {
		if run.ctx.Err() != nil {
			return
		}

		lookupChan := o.safeLookup(run.ctx, p, accuracy)
		if lookupChan == nil {
			if !sleepOrDone(run.ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

	stream:
		for {
			select {
			case <-run.ctx.Done():
				return
			case r, ok := <-lookupChan:
				if !ok {
					break stream
				}
				if r.Err != nil && !IsTransient(r.Err) {
					o.providerFailed(run, p, r.Err)
					return
				}
				run.deliver(r, p.Name())
				backoff = initialBackoff
			}
		}

		if !sleepOrDone(run.ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (o *Orchestrator) providerFailed(run *trackingRun, p Provider, err error) {
	o.logger.Warn("position provider failed", logger.Err(err), slogProvider(p))
	if atomic.AddInt32(&run.remaining, -1) > 0 {
		return
	}
	run.deliver(ErrorResult(err), p.Name())
}

// safeLookup safely invokes the LookupStream method on a Provider and recovers from potential panics.
// Returns a read-only channel of Result or nil if the operation fails.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, accuracy float64) (ch <-chan Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("position provider panicked", logger.Err(fmt.Errorf("%v", r)), slogProvider(provider))
			ch = nil
		}
	}()
	return provider.LookupStream(ctx, accuracy)
}
