// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geocode resolves coordinates to postal addresses.
package geocode

import (
	"context"
	"strings"

	"github.com/wneessen/mylocations/internal/geobus"
)

// Address is a single reverse geocoding candidate. AddressFound is false for the empty
// Address that represents "looked up, but nothing found".
type Address struct {
	AddressFound bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	State        string
	Municipality string
	CityDistrict string
	Postcode     string
	City         string
	Suburb       string
	Street       string
	HouseNumber  string
}

// Geocoder performs reverse geocoding. Reverse returns the candidates in the order the
// service ranked them. An empty list without error means that no address exists for the
// coordinate.
type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) ([]Address, error)
}

// Locality returns the most specific settlement name of the address.
func (a Address) Locality() string {
	switch {
	case a.City != "":
		return a.City
	case a.Municipality != "":
		return a.Municipality
	case a.Suburb != "":
		return a.Suburb
	default:
		return a.CityDistrict
	}
}

// Formatted returns the address as single line in the form "house street, city, state
// postcode, country". Missing parts are left out.
func (a Address) Formatted() string {
	if !a.AddressFound {
		return ""
	}
	parts := make([]string, 0, 4)
	if line := joinNonEmpty(" ", a.HouseNumber, a.Street); line != "" {
		parts = append(parts, line)
	}
	if city := a.Locality(); city != "" {
		parts = append(parts, city)
	}
	if line := joinNonEmpty(" ", a.State, a.Postcode); line != "" {
		parts = append(parts, line)
	}
	if a.Country != "" {
		parts = append(parts, a.Country)
	}
	if len(parts) == 0 {
		return a.DisplayName
	}
	return strings.Join(parts, ", ")
}

// Lines returns the address in two lines, street and house number first, then city,
// state and postcode.
func (a Address) Lines() (string, string) {
	return joinNonEmpty(" ", a.HouseNumber, a.Street), joinNonEmpty(" ", a.Locality(), a.State, a.Postcode)
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
