// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"math"
	"time"
)

// Reading is a single position report of a provider.
type Reading struct {
	Coordinate

	// Accuracy is the horizontal accuracy radius in meters. Negative values mark an
	// invalid measurement.
	Accuracy float64
	Altitude float64
	// At is the time the provider produced the reading, not the time it was received.
	At     time.Time
	Source string
}

// Valid reports whether the reading carries a usable measurement.
func (r Reading) Valid() bool {
	if math.IsNaN(r.Accuracy) || r.Accuracy < 0 {
		return false
	}
	return r.Coordinate.Valid()
}

// MoreAccurateThan reports whether r is strictly more accurate than other.
func (r Reading) MoreAccurateThan(other Reading) bool {
	return r.Accuracy < other.Accuracy
}
