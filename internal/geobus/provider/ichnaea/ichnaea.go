// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/http"
)

const (
	DefaultEndpoint = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout   = time.Second * 5
	name            = "ichnaea"
)

// accessPointScanner is implemented by *wifi.Client.
type accessPointScanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
}

// GeolocationICHNAEAProvider locates the device by sending the visible WiFi access points
// to an Ichnaea compatible geolocation API like BeaconDB.
type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *http.Client
	wlan     accessPointScanner
	period   time.Duration
	nowFn    func() time.Time
	locateFn func(ctx context.Context) (geobus.Reading, error)
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

// NewGeolocationICHNAEAProvider returns a new provider. If no WiFi client is available the
// provider falls back to IP based lookups.
func NewGeolocationICHNAEAProvider(http *http.Client, endpoint string) (*GeolocationICHNAEAProvider, error) {
	if http == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	provider := &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: endpoint,
		http:     http,
		period:   time.Second * 15,
		nowFn:    time.Now,
	}
	if wlan, err := wifi.New(); err == nil {
		provider.wlan = wlan
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// LookupStream periodically locates the device and emits the result. Failed lookups are
// reported as ErrLocationUnknown and retried in the next period.
func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Result {
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

			reading, err := p.locateFn(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				err = fmt.Errorf("%w: %s", geobus.ErrLocationUnknown, err)
				if !geobus.Send(ctx, out, geobus.ErrorResult(err)) {
					return
				}
				continue
			}
			if !geobus.Send(ctx, out, geobus.Result{Reading: reading}) {
				return
			}
		}
	}()
	return out
}

func (p *GeolocationICHNAEAProvider) wifiAccessPoints() ([]WirelessNetwork, error) {
	if p.wlan == nil {
		return nil, nil
	}
	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []WirelessNetwork
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		list = append(list, filterAccessPoints(aps)...)
	}
	return list, nil
}

// filterAccessPoints drops hidden networks and networks that opted out of location services
// by using the _nomap suffix.
func filterAccessPoints(aps []*wifi.BSS) []WirelessNetwork {
	list := make([]WirelessNetwork, 0, len(aps))
	for _, ap := range aps {
		if ap == nil || ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
			continue
		}
		list = append(list, WirelessNetwork{
			SignalStrength: ap.Signal / 100,
			MACAddress:     ap.BSSID.String(),
			LastSeen:       ap.LastSeen.Milliseconds(),
		})
	}
	return list
}

func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (geobus.Reading, error) {
	// A failed WiFi scan is not fatal, the API still locates us by IP address.
	wifiList, _ := p.wifiAccessPoints()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	bodyBuffer := bytes.NewBuffer(nil)
	if err := json.NewEncoder(bodyBuffer).Encode(req); err != nil {
		return geobus.Reading{}, fmt.Errorf("failed to encode wifi list to JSON: %w", err)
	}

	result := new(APIResult)
	if _, err := p.http.PostWithTimeout(ctx, p.endpoint, result, bodyBuffer,
		map[string]string{"Content-Type": "application/json"}, lookupTimeout); err != nil {
		return geobus.Reading{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	if result.Location.Latitude == 0 && result.Location.Longitude == 0 {
		return geobus.Reading{}, errors.New("geolocation API returned no location")
	}

	return geobus.Reading{
		Coordinate: geobus.Coordinate{
			Lat: geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
			Lon: geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
		},
		Accuracy: result.Accuracy,
		At:       p.nowFn(),
		Source:   p.name,
	}, nil
}
