// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	stdhttp "net/http"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/http"
	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/testhelper"
)

const (
	testFile = "beacondb.json"
	testLat  = 40.7185
	testLon  = -74.0025
	testAcc  = 2000
)

func TestNewGeolocationICHNAEAProvider(t *testing.T) {
	t.Run("new ICHNAEA provider succeeds", func(t *testing.T) {
		provider, err := NewGeolocationICHNAEAProvider(testClient(), "")
		if err != nil {
			t.Fatalf("failed to create ICHNAEA provider: %s", err)
		}
		if provider.endpoint != DefaultEndpoint {
			t.Errorf("expected default endpoint, got %s", provider.endpoint)
		}
		if !strings.EqualFold(provider.Name(), name) {
			t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
		}
	})
	t.Run("ICHNAEA without http client fails ", func(t *testing.T) {
		provider, err := NewGeolocationICHNAEAProvider(nil, "")
		if err == nil {
			t.Fatal("expected provider to fail")
		}
		if provider != nil {
			t.Fatal("expected provider to be nil")
		}
	})
}

func TestFilterAccessPoints(t *testing.T) {
	mac, _ := net.ParseMAC("00:11:22:33:44:55")
	aps := []*wifi.BSS{
		{SSID: "home", BSSID: mac, Signal: -6500, LastSeen: 1500 * time.Millisecond},
		{SSID: "", BSSID: mac},
		{SSID: "\x00\x00", BSSID: mac},
		{SSID: "private_nomap", BSSID: mac},
		nil,
	}
	list := filterAccessPoints(aps)
	if len(list) != 1 {
		t.Fatalf("expected 1 access point, got %d", len(list))
	}
	if list[0].MACAddress != "00:11:22:33:44:55" {
		t.Errorf("unexpected MAC address: %s", list[0].MACAddress)
	}
	if list[0].SignalStrength != -65 {
		t.Errorf("expected signal strength -65, got %d", list[0].SignalStrength)
	}
	if list[0].LastSeen != 1500 {
		t.Errorf("expected age 1500, got %d", list[0].LastSeen)
	}
}

func TestGeolocationICHNAEAProvider_wifiAccessPoints(t *testing.T) {
	mac, _ := net.ParseMAC("00:11:22:33:44:55")
	provider, _ := NewGeolocationICHNAEAProvider(testClient(), "")
	provider.wlan = &fakeScanner{
		ifaces: []*wifi.Interface{
			{Name: "wlan0", Type: wifi.InterfaceTypeStation},
			{Name: "ap0", Type: wifi.InterfaceTypeAP},
		},
		aps: []*wifi.BSS{{SSID: "home", BSSID: mac, Signal: -5000}},
	}
	list, err := provider.wifiAccessPoints()
	if err != nil {
		t.Fatalf("failed to get WiFi list: %s", err)
	}
	if len(list) != 1 {
		t.Errorf("expected only station interfaces to be scanned, got %d networks", len(list))
	}
}

func TestGeolocationICHNAEAProvider_locate(t *testing.T) {
	t.Run("locate succeeds", func(t *testing.T) {
		var body map[string]any
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Errorf("failed to decode request body: %s", err)
			}
			return testhelper.JSONResponse(t, testFile)(req)
		}
		client := testClient()
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		provider, err := NewGeolocationICHNAEAProvider(client, "")
		if err != nil {
			t.Fatalf("failed to create ICHNAEA provider: %s", err)
		}
		provider.wlan = nil

		reading, err := provider.locate(t.Context())
		if err != nil {
			t.Fatalf("failed to locate coordinates via ICHNAEA: %s", err)
		}
		if reading.Lat != testLat {
			t.Errorf("expected latitude to be %f, got %f", testLat, reading.Lat)
		}
		if reading.Lon != testLon {
			t.Errorf("expected longitude to be %f, got %f", testLon, reading.Lon)
		}
		if reading.Accuracy != testAcc {
			t.Errorf("expected accuracy to be %d, got %f", testAcc, reading.Accuracy)
		}
		if considerIP, ok := body["considerIp"].(bool); !ok || !considerIP {
			t.Error("expected considerIp to be set in request")
		}
	})
	t.Run("locate fails with broken JSON", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return &stdhttp.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader("NOT_JSON")),
				Header:     make(stdhttp.Header),
			}, nil
		}
		client := testClient()
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		provider, _ := NewGeolocationICHNAEAProvider(client, "")
		provider.wlan = nil

		if _, err := provider.locate(t.Context()); err == nil {
			t.Fatal("expected locate to fail")
		}
	})
	t.Run("locate fails on empty location", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return &stdhttp.Response{
				StatusCode: 200,
				Body:       io.NopCloser(strings.NewReader(`{"location":{"lat":0,"lng":0},"accuracy":0}`)),
				Header:     make(stdhttp.Header),
			}, nil
		}
		client := testClient()
		client.Transport = testhelper.MockRoundTripper{Fn: rtFn}
		provider, _ := NewGeolocationICHNAEAProvider(client, "")
		provider.wlan = nil

		if _, err := provider.locate(t.Context()); err == nil {
			t.Fatal("expected locate to fail")
		}
	})
}

func TestGeolocationICHNAEAProvider_LookupStream(t *testing.T) {
	t.Run("failed lookups are transient and retried", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			runCount := 0
			provider := &GeolocationICHNAEAProvider{name: name, http: testClient(), period: time.Second, nowFn: time.Now}
			provider.locateFn = func(context.Context) (geobus.Reading, error) {
				runCount++
				if runCount == 1 {
					return geobus.Reading{}, errors.New("intentionally failing")
				}
				return geobus.Reading{Coordinate: geobus.Coordinate{Lat: 1, Lon: 2}, Accuracy: 3, Source: name}, nil
			}

			out := provider.LookupStream(ctx, 10)
			first := <-out
			if !geobus.IsTransient(first.Err) {
				t.Errorf("expected transient error, got %v", first.Err)
			}
			second := <-out
			if second.Err != nil {
				t.Fatalf("expected reading, got error %s", second.Err)
			}
			if second.Reading.Lat != 1 || second.Reading.Lon != 2 || second.Reading.Accuracy != 3 {
				t.Errorf("unexpected reading: %+v", second.Reading)
			}
		})
	})
}

func testClient() *http.Client {
	return http.New(logger.NewLogger(slog.LevelInfo, io.Discard))
}

type fakeScanner struct {
	ifaces []*wifi.Interface
	aps    []*wifi.BSS
}

func (f *fakeScanner) Interfaces() ([]*wifi.Interface, error) { return f.ifaces, nil }

func (f *fakeScanner) AccessPoints(*wifi.Interface) ([]*wifi.BSS, error) { return f.aps, nil }
