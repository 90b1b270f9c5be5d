// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package vartype provides a small generic wrapper that distinguishes between a value
// that has never been set and a value that has been set to its zero value.
package vartype

import (
	"fmt"
)

// Variable holds a value of type T and tracks whether it has been set. The zero value
// is an unset Variable. All read methods use value receivers so that Variables embedded
// in snapshots can be inspected without taking their address.
type Variable[T any] struct {
	value T
	isset bool
}

// NewVariable creates and returns a new Variable instance initialized with the provided value.
func NewVariable[T any](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Reset clears the value of the Variable and marks it as unset.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Set assigns the provided value to the Variable and marks it as set.
func (v *Variable[T]) Set(val T) {
	v.value = val
	v.isset = true
}

// Value retrieves the current value stored in the Variable.
func (v Variable[T]) Value() T {
	return v.value
}

// Get returns the value and whether it has been set, in the style of a map lookup.
func (v Variable[T]) Get() (T, bool) {
	return v.value, v.isset
}

// IsSet returns true if the Variable has been set.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// String returns a string representation of the Variable or "<unset>".
func (v Variable[T]) String() string {
	if !v.isset {
		return "<unset>"
	}
	return fmt.Sprint(v.value)
}
