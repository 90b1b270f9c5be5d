// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locate

import "time"

const (
	DefaultStallTimeout   = time.Minute
	DefaultStaleAge       = 5 * time.Second
	DefaultStableAfter    = 10 * time.Second
	DefaultStableDistance = 1.0
)

// Policy holds the tunables of an acquisition.
type Policy struct {
	// StallTimeout ends an acquisition that has not produced any accepted reading.
	StallTimeout time.Duration

	// MaxDuration ends an acquisition that has not reached its accuracy target, keeping
	// the best reading found so far. A negative value disables the deadline, zero selects
	// the stall timeout.
	MaxDuration time.Duration

	// StaleAge is the maximum age of a reading at the time it is processed.
	StaleAge time.Duration

	// StableAfter and StableDistance (in meters) make up the stability rule: a reading that
	// does not improve the best one, lies closer than StableDistance to it and was produced
	// more than StableAfter later ends the acquisition.
	StableAfter    time.Duration
	StableDistance float64
}

// DefaultPolicy returns the policy used when no overrides are configured.
func DefaultPolicy() Policy {
	return Policy{
		StallTimeout:   DefaultStallTimeout,
		MaxDuration:    DefaultStallTimeout,
		StaleAge:       DefaultStaleAge,
		StableAfter:    DefaultStableAfter,
		StableDistance: DefaultStableDistance,
	}
}

func (p Policy) withDefaults() Policy {
	if p.StallTimeout <= 0 {
		p.StallTimeout = DefaultStallTimeout
	}
	if p.MaxDuration == 0 {
		p.MaxDuration = p.StallTimeout
	}
	if p.StaleAge <= 0 {
		p.StaleAge = DefaultStaleAge
	}
	if p.StableAfter <= 0 {
		p.StableAfter = DefaultStableAfter
	}
	if p.StableDistance <= 0 {
		p.StableDistance = DefaultStableDistance
	}
	return p
}
