// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geobus connects position providers with a single listener.
package geobus

import (
	"context"
	"math"
	"time"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 6
)

// Provider defines an interface for geolocation service providers. LookupStream emits
// results until the context is done or the provider gives up, in which case the channel
// is closed. A provider that cannot work at all sends a single Result carrying a non-
// transient error and closes the channel.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, accuracy float64) <-chan Result
}

// Result is either a Reading or an error emitted by a Provider.
type Result struct {
	Reading Reading
	Err     error
}

// Listener receives readings and errors from a position source.
type Listener interface {
	OnReading(Reading)
	OnError(error)
}

// ErrorResult is a convenience constructor for error results.
func ErrorResult(err error) Result {
	return Result{Err: err}
}

// Send delivers r on out unless ctx is done first. It returns false if the context ended.
func Send(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
