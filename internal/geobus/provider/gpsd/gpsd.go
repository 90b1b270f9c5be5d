// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/mylocations/internal/geobus"
)

const (
	name = "gpsd"

	DefaultHost = "localhost"
	DefaultPort = "2947"

	// gpsd reports no usable error estimate for some receivers, so we fall back to the
	// typical accuracy of the fix mode.
	fallbackAccuracy3D = 10
	fallbackAccuracy2D = 25
)

// session is the part of a gpsd session we make use of.
type session interface {
	AddFilter(class string, f gpsd.Filter)
	Watch() chan bool
}

// GeolocationGPSDProvider streams TPV reports of a gpsd daemon.
type GeolocationGPSDProvider struct {
	name   string
	addr   string
	dialFn func(addr string) (session, error)
	nowFn  func() time.Time
}

// NewGeolocationGPSDProvider returns a provider for the gpsd daemon at host:port.
func NewGeolocationGPSDProvider(host, port string) *GeolocationGPSDProvider {
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	return &GeolocationGPSDProvider{
		name:   name,
		addr:   net.JoinHostPort(host, port),
		dialFn: dial,
		nowFn:  time.Now,
	}
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

// LookupStream connects to gpsd and emits a Result for every TPV report. gpsd delivers
// fixes in its own pace, so the requested accuracy is not used. If gpsd can not be reached,
// a single ErrDisabled result is emitted.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)

		sess, err := p.dialFn(p.addr)
		if err != nil {
			geobus.Send(ctx, out, geobus.ErrorResult(fmt.Errorf("%w: failed to connect to gpsd at %q: %s",
				geobus.ErrDisabled, p.addr, err)))
			return
		}

		// go-gpsd has no way to remove a filter, so we make sure that the filter never
		// sends on the closed channel once we returned.
		var mu sync.Mutex
		closed := false
		quit := make(chan struct{})
		defer func() {
			close(quit)
			mu.Lock()
			closed = true
			mu.Unlock()
		}()

		sess.AddFilter("TPV", func(r interface{}) {
			tpv, ok := r.(*gpsd.TPVReport)
			if !ok {
				return
			}
			res := p.resultFromTPV(tpv)

			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			select {
			case <-ctx.Done():
			case <-quit:
			case out <- res:
			}
		})

		// Watch() returns a channel that closes when the watch ends (e.g. connection lost).
		// The orchestrator will reconnect us in that case. go-gpsd itself has no Close().
		done := sess.Watch()
		select {
		case <-ctx.Done():
		case <-done:
		}
	}()

	return out
}

// resultFromTPV converts a TPV report to a Result. Reports without at least a 2D fix
// are reported as ErrLocationUnknown.
func (p *GeolocationGPSDProvider) resultFromTPV(tpv *gpsd.TPVReport) geobus.Result {
	if tpv.Mode < gpsd.Mode2D {
		return geobus.ErrorResult(fmt.Errorf("%w: gpsd has no fix (mode %d)", geobus.ErrLocationUnknown, tpv.Mode))
	}

	at := tpv.Time
	if at.IsZero() {
		at = p.nowFn()
	}
	return geobus.Result{Reading: geobus.Reading{
		Coordinate: geobus.Coordinate{
			Lat: geobus.Truncate(tpv.Lat, geobus.TruncPrecision),
			Lon: geobus.Truncate(tpv.Lon, geobus.TruncPrecision),
		},
		Accuracy: horizontalAccuracy(tpv),
		Altitude: tpv.Alt,
		At:       at,
		Source:   p.name,
	}}
}

// horizontalAccuracy combines the longitude and latitude error estimates. Receivers that
// do not report them get the typical accuracy of their fix mode.
func horizontalAccuracy(tpv *gpsd.TPVReport) float64 {
	if tpv.Epx > 0 || tpv.Epy > 0 {
		return math.Hypot(tpv.Epx, tpv.Epy)
	}
	if tpv.Mode == gpsd.Mode3D {
		return fallbackAccuracy3D
	}
	return fallbackAccuracy2D
}

func dial(addr string) (session, error) {
	sess, err := gpsd.Dial(addr)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
