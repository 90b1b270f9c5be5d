// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/mylocations/internal/config"
	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geobus/provider/geoapi"
	"github.com/wneessen/mylocations/internal/geobus/provider/geoclue"
	"github.com/wneessen/mylocations/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/mylocations/internal/geobus/provider/gpsd"
	"github.com/wneessen/mylocations/internal/geobus/provider/ichnaea"
	"github.com/wneessen/mylocations/internal/geocode"
	geocodeearth "github.com/wneessen/mylocations/internal/geocode/provider/geocode-earth"
	"github.com/wneessen/mylocations/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/mylocations/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/mylocations/internal/http"
	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/store"
	"github.com/wneessen/mylocations/internal/store/memory"
	"github.com/wneessen/mylocations/internal/store/postgres"
)

func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	httpClient := http.New(s.logger)
	conf := s.config.GeoLocation
	var provider []geobus.Provider

	if !conf.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(conf.File))
	}

	if !conf.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(conf.GPSDHost, conf.GPSDPort))
	}

	if !conf.DisableGeoClue {
		provider = append(provider, geoclue.NewGeolocationGeoClueProvider(DesktopID))
	}

	if !conf.DisableGeoAPI {
		gap, err := geoapi.NewGeolocationGeoAPIProvider(httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoAPI provider: %w", err)
		}
		provider = append(provider, gap)
	}

	if !conf.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(httpClient, conf.ICHNAEAEndpoint)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, fmt.Errorf("no geolocation providers enabled")
	}

	return provider, nil
}

// selectGeocodeProvider returns the configured reverse geocoder wrapped in a cache.
func selectGeocodeProvider(conf *config.Config, log *logger.Logger, lang language.Tag) (geocode.Geocoder, error) {
	var coder geocode.Geocoder
	client := http.New(log)

	switch strings.ToLower(conf.Geocoder.Provider) {
	case config.GeocoderNominatim:
		coder = nominatim.New(client, lang)
	case config.GeocoderOpenCage:
		if conf.Geocoder.APIKey == "" {
			return nil, fmt.Errorf("opencage geocoder requires an API key")
		}
		coder = opencage.New(client, lang, conf.Geocoder.APIKey)
	case config.GeocoderGeocodeEarth:
		if conf.Geocoder.APIKey == "" {
			return nil, fmt.Errorf("geocode-earth geocoder requires an API key")
		}
		coder = geocodeearth.New(client, lang, conf.Geocoder.APIKey)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.Geocoder.Provider)
	}

	return geocode.NewCachedGeocoder(coder, conf.Geocoder.HitTTL, conf.Geocoder.MissTTL), nil
}

// openStore returns the configured record store and a function releasing it.
func openStore(ctx context.Context, conf *config.Config) (store.RecordStore, func() error, error) {
	switch conf.Store.Driver {
	case config.StoreMemory:
		return memory.New(), func() error { return nil }, nil
	case config.StorePostgres:
		db, err := postgres.Open(ctx, conf.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %s", conf.Store.Driver)
	}
}
