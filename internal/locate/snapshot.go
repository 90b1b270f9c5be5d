// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locate

import (
	"time"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
	"github.com/wneessen/mylocations/internal/vartype"
)

// StopReason tells why an acquisition ended.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonAccuracyReached
	ReasonStable
	ReasonTimeout
	ReasonError
	ReasonUser
)

func (r StopReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonAccuracyReached:
		return "accuracy_reached"
	case ReasonStable:
		return "stable"
	case ReasonTimeout:
		return "timeout"
	case ReasonError:
		return "error"
	case ReasonUser:
		return "user"
	default:
		return "unknown"
	}
}

// State is the observable state of an acquisition session.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateSucceeded
	StateTimedOut
	StateFailed
	StateStoppedByUser
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateSucceeded:
		return "succeeded"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	case StateStoppedByUser:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	return s > StateAcquiring
}

// Snapshot is an immutable copy of the acquisition session taken at a publish point.
//
// Address is tri-state: unset means no lookup has completed, a set Address with
// AddressFound false means the lookup found nothing.
type Snapshot struct {
	Session         uint64
	Best            vartype.Variable[geobus.Reading]
	LastError       error
	Active          bool
	Address         vartype.Variable[geocode.Address]
	GeocodeInFlight bool
	GeocodeError    error
	DesiredAccuracy float64
	StartedAt       time.Time
	StoppedAt       time.Time
	StopReason      StopReason
}

// State derives the session state from the snapshot.
func (s Snapshot) State() State {
	switch {
	case s.Session == 0:
		return StateIdle
	case s.Active:
		return StateAcquiring
	}
	switch s.StopReason {
	case ReasonAccuracyReached, ReasonStable:
		return StateSucceeded
	case ReasonTimeout:
		return StateTimedOut
	case ReasonError:
		return StateFailed
	default:
		return StateStoppedByUser
	}
}

// Elapsed returns the time the session ran, or has been running at now.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if !s.Active && !s.StoppedAt.IsZero() {
		return s.StoppedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}
