// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	stdhttp "net/http"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/http"
	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/testhelper"
)

const (
	testLat = 40.7185
	testLon = -74.0025
)

func TestNewGeolocationGeoAPIProvider(t *testing.T) {
	t.Run("new GeoAPI provider succeeds", func(t *testing.T) {
		provider, err := NewGeolocationGeoAPIProvider(testClient())
		if err != nil {
			t.Fatalf("failed to create GeoAPI provider: %s", err)
		}
		if !strings.EqualFold(provider.Name(), name) {
			t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
		}
	})
	t.Run("GeoAPI without http client fails", func(t *testing.T) {
		if _, err := NewGeolocationGeoAPIProvider(nil); err == nil {
			t.Fatal("expected provider to fail")
		}
	})
}

func TestGeolocationGeoAPIProvider_locate(t *testing.T) {
	t.Run("locate fails on invalid coordinate parsing", func(t *testing.T) {
		for _, file := range []string{"geoapi_brokenlat.json", "geoapi_brokenlon.json"} {
			t.Run(file, func(t *testing.T) {
				client := testClient()
				client.Transport = testhelper.MockRoundTripper{Fn: testhelper.JSONResponse(t, file)}
				provider, _ := NewGeolocationGeoAPIProvider(client)
				if _, err := provider.locate(t.Context()); err == nil {
					t.Error("expected locate to fail")
				}
			})
		}
	})
	t.Run("locate succeeds with different accuracies", func(t *testing.T) {
		tests := []struct {
			name string
			file string
			want float64
		}{
			{name: "zip", file: "geoapi.json", want: geobus.AccuracyZip},
			{name: "city", file: "geoapi_nozip.json", want: geobus.AccuracyCity},
			{name: "region", file: "geoapi_nocity.json", want: geobus.AccuracyRegion},
			{name: "country", file: "geoapi_noregion.json", want: geobus.AccuracyCountry},
			{name: "unknown", file: "geoapi_nocountry.json", want: geobus.AccuracyUnknown},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				client := testClient()
				client.Transport = testhelper.MockRoundTripper{Fn: testhelper.JSONResponse(t, tc.file)}
				provider, _ := NewGeolocationGeoAPIProvider(client)

				reading, err := provider.locate(t.Context())
				if err != nil {
					t.Fatalf("failed to locate coordinates via GeoAPI: %s", err)
				}
				if reading.Lat != testLat {
					t.Errorf("expected latitude to be %f, got %f", testLat, reading.Lat)
				}
				if reading.Lon != testLon {
					t.Errorf("expected longitude to be %f, got %f", testLon, reading.Lon)
				}
				if reading.Accuracy != tc.want {
					t.Errorf("expected accuracy to be %f, got %f", tc.want, reading.Accuracy)
				}
				if reading.Source != name {
					t.Errorf("expected source to be %s, got %s", name, reading.Source)
				}
			})
		}
	})
	t.Run("locate fails on API request", func(t *testing.T) {
		client := testClient()
		client.Transport = testhelper.MockRoundTripper{Fn: func(*stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}}
		provider, _ := NewGeolocationGeoAPIProvider(client)
		if _, err := provider.locate(t.Context()); err == nil {
			t.Error("expected locate to fail")
		}
	})
}

func TestGeolocationGeoAPIProvider_LookupStream(t *testing.T) {
	t.Run("lookup stream emits periodically", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			client := testClient()
			client.Transport = testhelper.MockRoundTripper{Fn: testhelper.JSONResponse(t, "geoapi.json")}
			provider, _ := NewGeolocationGeoAPIProvider(client)
			start := time.Now()

			out := provider.LookupStream(ctx, 10)
			first := <-out
			second := <-out
			if first.Err != nil || second.Err != nil {
				t.Fatalf("expected readings, got errors %v, %v", first.Err, second.Err)
			}
			if first.Reading.Accuracy != geobus.AccuracyZip {
				t.Errorf("expected accuracy to be %d, got %f", geobus.AccuracyZip, first.Reading.Accuracy)
			}
			if got := second.Reading.At.Sub(start); got != provider.period {
				t.Errorf("expected second reading after %s, got %s", provider.period, got)
			}
		})
	})
	t.Run("failed lookups are transient", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider, _ := NewGeolocationGeoAPIProvider(testClient())
			provider.locateFn = func(context.Context) (geobus.Reading, error) {
				return geobus.Reading{}, errors.New("intentionally failing")
			}
			res := <-provider.LookupStream(ctx, 10)
			if !geobus.IsTransient(res.Err) {
				t.Errorf("expected transient error, got %v", res.Err)
			}
		})
	})
}

func testClient() *http.Client {
	return http.New(logger.NewLogger(slog.LevelInfo, io.Discard))
}
