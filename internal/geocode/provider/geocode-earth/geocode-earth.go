// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocodeearth

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
	APIEndpoint = "https://api.geocode.earth/v1/reverse"
	APITimeout  = time.Second * 10
	name        = "geocode-earth"
	maxResults  = 5
)

type GeocodeEarth struct {
	apikey   string
	http     *http.Client
	lang     language.Tag
	endpoint string
}

type Response struct {
	Features []Feature `json:"features"`
	Type     string    `json:"type"`
}

type Feature struct {
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
	Type       string     `json:"type"`
}

// Geometry holds a GeoJSON point, coordinates are in longitude, latitude order.
type Geometry struct {
	Coordinates []float64 `json:"coordinates"`
}

type Properties struct {
	DisplayName  string `json:"label"`
	City         string `json:"locality"`
	CityDistrict string `json:"county"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
	HouseNumber  string `json:"housenumber"`
	Municipality string `json:"neighbourhood"`
	Postcode     string `json:"postalcode"`
	Road         string `json:"street"`
	State        string `json:"region"`
	StateCode    string `json:"region_a"`
}

func New(client *http.Client, lang language.Tag, apikey string) *GeocodeEarth {
	return &GeocodeEarth{
		apikey:   apikey,
		lang:     lang,
		http:     client,
		endpoint: APIEndpoint,
	}
}

func (g *GeocodeEarth) Name() string {
	return name
}

// Reverse returns the features geocode.earth found near coords, nearest first.
func (g *GeocodeEarth) Reverse(ctx context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	var response Response

	query := url.Values{}
	query.Set("api_key", g.apikey)
	query.Set("point.lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	query.Set("point.lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	query.Set("size", strconv.Itoa(maxResults))
	query.Set("lang", g.lang.String())

	if _, err := g.http.GetWithTimeout(ctx, g.endpoint, &response, query, nil, APITimeout); err != nil {
		return nil, fmt.Errorf("failed to retrieve address details from geocode.earth API: %w", err)
	}

	addresses := make([]geocode.Address, 0, len(response.Features))
	for _, feature := range response.Features {
		result := feature.Properties
		address := geocode.Address{
			AddressFound: true,
			Latitude:     coords.Lat,
			Longitude:    coords.Lon,
			DisplayName:  result.DisplayName,
			Country:      result.Country,
			State:        result.State,
			Municipality: result.Municipality,
			CityDistrict: result.CityDistrict,
			Postcode:     result.Postcode,
			City:         result.City,
			Street:       result.Road,
			HouseNumber:  result.HouseNumber,
		}
		if len(feature.Geometry.Coordinates) == 2 {
			address.Longitude = feature.Geometry.Coordinates[0]
			address.Latitude = feature.Geometry.Coordinates[1]
		}
		addresses = append(addresses, address)
	}
	return addresses, nil
}
