// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locate

import "errors"

var (
	// ErrTimeout is recorded as last error when an acquisition runs into its stall timeout
	// or its deadline.
	ErrTimeout = errors.New("timed out waiting for a location")

	// ErrInvalidAccuracy is returned by Start for negative or NaN accuracy targets.
	ErrInvalidAccuracy = errors.New("desired accuracy must be a non-negative number")

	// ErrSourceStart wraps errors returned by the position source on start.
	ErrSourceStart = errors.New("failed to start position source")

	// ErrNoSource is returned by New if no position source was given.
	ErrNoSource = errors.New("no position source configured")
)
