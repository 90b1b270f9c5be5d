// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
	"github.com/wneessen/mylocations/internal/http"
)

const (
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "osm-nominatim"

	// address level detail, see https://nominatim.org/release-docs/latest/api/Reverse/
	zoomBuilding = 18
)

type Nominatim struct {
	http     *http.Client
	lang     language.Tag
	endpoint string
}

type ReverseResult struct {
	Error       string  `json:"error"`
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

// Address holds the parts of a Nominatim address this package uses. Nominatim names
// the locality and the street by the kind of place, so several fields may stand for the
// same concept.
type Address struct {
	HouseNumber   string `json:"house_number"`
	Road          string `json:"road"`
	Pedestrian    string `json:"pedestrian"`
	Footway       string `json:"footway"`
	Suburb        string `json:"suburb"`
	Neighbourhood string `json:"neighbourhood"`
	Municipality  string `json:"municipality"`
	CityDistrict  string `json:"city_district"`
	City          string `json:"city"`
	Town          string `json:"town"`
	Village       string `json:"village"`
	Hamlet        string `json:"hamlet"`
	State         string `json:"state"`
	Postcode      string `json:"postcode"`
	Country       string `json:"country"`
}

func New(client *http.Client, lang language.Tag) *Nominatim {
	return &Nominatim{
		lang:     lang,
		http:     client,
		endpoint: APIReverseEndpoint,
	}
}

func (n *Nominatim) Name() string {
	return name
}

// Reverse looks up the address at coords. Nominatim only ever returns a single candidate.
// Locations without an address (e.g. the open sea) are reported as an empty list.
func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var result ReverseResult
	if _, err := n.http.GetWithTimeout(ctx, n.endpoint, &result, n.query(coords), nil, APITimeout); err != nil {
		return nil, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	if result.Error != "" {
		return nil, nil
	}

	address, err := toAddress(result)
	if err != nil {
		return nil, err
	}
	return []geocode.Address{address}, nil
}

func (n *Nominatim) query(coords geobus.Coordinate) url.Values {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("addressdetails", "1")
	query.Set("zoom", strconv.Itoa(zoomBuilding))
	query.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	query.Set("accept-language", n.lang.String())
	return query
}

func toAddress(result ReverseResult) (geocode.Address, error) {
	addr := result.Address
	lat, err := strconv.ParseFloat(result.APILat, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	lon, err := strconv.ParseFloat(result.APILon, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return geocode.Address{
		AddressFound: true,
		Latitude:     lat,
		Longitude:    lon,
		DisplayName:  result.DisplayName,
		Country:      addr.Country,
		State:        addr.State,
		Municipality: addr.Municipality,
		CityDistrict: addr.CityDistrict,
		Postcode:     addr.Postcode,
		City:         firstNonEmpty(addr.City, addr.Town, addr.Village, addr.Hamlet),
		Suburb:       firstNonEmpty(addr.Suburb, addr.Neighbourhood),
		Street:       firstNonEmpty(addr.Road, addr.Pedestrian, addr.Footway),
		HouseNumber:  addr.HouseNumber,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
