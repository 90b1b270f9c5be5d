// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoapi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/http"
)

const (
	apiEndpoint   = "https://geoapi.info/api/geo"
	lookupTimeout = time.Second * 5
	name          = "geoapi"
)

// GeolocationGeoAPIProvider estimates the position from the public IP address. The
// accuracy is derived from the granularity of the returned location.
type GeolocationGeoAPIProvider struct {
	name     string
	http     *http.Client
	period   time.Duration
	nowFn    func() time.Time
	locateFn func(ctx context.Context) (geobus.Reading, error)
}

type APIResult struct {
	IP       string `json:"ip"`
	Location struct {
		CountryCode string `json:"country,omitempty"`
		Country     string `json:"countryName,omitempty"`
		Region      string `json:"region,omitempty"`
		City        string `json:"city,omitempty"`
		ZipCode     string `json:"postalCode,omitempty"`
		TimeZone    string `json:"timezone"`
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

func NewGeolocationGeoAPIProvider(http *http.Client) (*GeolocationGeoAPIProvider, error) {
	if http == nil {
		return nil, fmt.Errorf("http client is required")
	}
	provider := &GeolocationGeoAPIProvider{
		name:   name,
		http:   http,
		period: time.Second * 15,
		nowFn:  time.Now,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationGeoAPIProvider) Name() string {
	return p.name
}

// LookupStream periodically emits the IP based position until the context is done.
func (p *GeolocationGeoAPIProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			var res geobus.Result
			reading, err := p.locateFn(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				res = geobus.ErrorResult(fmt.Errorf("%w: %s", geobus.ErrLocationUnknown, err))
			default:
				res = geobus.Result{Reading: reading}
			}
			if !geobus.Send(ctx, out, res) {
				return
			}
		}
	}()
	return out
}

func (p *GeolocationGeoAPIProvider) locate(ctx context.Context) (geobus.Reading, error) {
	result := new(APIResult)
	if _, err := p.http.GetWithTimeout(ctx, apiEndpoint, result, nil, nil, lookupTimeout); err != nil {
		return geobus.Reading{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	lat, err := strconv.ParseFloat(result.Location.Coordinates.Latitude, 64)
	if err != nil {
		return geobus.Reading{}, fmt.Errorf("failed to parse latitude from API response: %w", err)
	}
	lon, err := strconv.ParseFloat(result.Location.Coordinates.Longitude, 64)
	if err != nil {
		return geobus.Reading{}, fmt.Errorf("failed to parse longitude from API response: %w", err)
	}

	return geobus.Reading{
		Coordinate: geobus.Coordinate{
			Lat: geobus.Truncate(lat, geobus.TruncPrecision),
			Lon: geobus.Truncate(lon, geobus.TruncPrecision),
		},
		Accuracy: granularityAccuracy(result),
		At:       p.nowFn(),
		Source:   p.name,
	}, nil
}

// granularityAccuracy returns the accuracy matching the most detailed location field present.
func granularityAccuracy(result *APIResult) float64 {
	switch {
	case result.Location.ZipCode != "":
		return geobus.AccuracyZip
	case result.Location.City != "":
		return geobus.AccuracyCity
	case result.Location.Region != "":
		return geobus.AccuracyRegion
	case result.Location.CountryCode != "":
		return geobus.AccuracyCountry
	default:
		return geobus.AccuracyUnknown
	}
}
