// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import "errors"

var (
	// ErrLocationUnknown indicates that the provider is running but has no fix at the
	// moment. It is transient and does not end an acquisition.
	ErrLocationUnknown = errors.New("location is currently unknown")

	// ErrDenied indicates that access to the location service was denied.
	ErrDenied = errors.New("access to location service denied")

	// ErrDisabled indicates that the location service is disabled or unreachable.
	ErrDisabled = errors.New("location service disabled or unavailable")
)

// PositionError is an error reported by a position provider.
type PositionError struct {
	Source string
	Err    error
}

func (e *PositionError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e *PositionError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err only means "no fix right now".
func IsTransient(err error) bool {
	return errors.Is(err, ErrLocationUnknown)
}
