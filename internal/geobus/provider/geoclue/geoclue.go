// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geoclue implements a position provider on top of the GeoClue2 D-Bus service.
package geoclue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/mylocations/internal/geobus"
)

const (
	name = "geoclue"

	busName       = "org.freedesktop.GeoClue2"
	managerPath   = "/org/freedesktop/GeoClue2/Manager"
	managerIface  = "org.freedesktop.GeoClue2.Manager"
	clientIface   = "org.freedesktop.GeoClue2.Client"
	locationIface = "org.freedesktop.GeoClue2.Location"
	propsGetAll   = "org.freedesktop.DBus.Properties.GetAll"

	accessDenied = "org.freedesktop.DBus.Error.AccessDenied"

	signalBufferSize = 8
)

// Accuracy levels as defined by GClueAccuracyLevel
const (
	levelCountry      uint32 = 1
	levelCity         uint32 = 4
	levelNeighborhood uint32 = 5
	levelStreet       uint32 = 6
	levelExact        uint32 = 8
)

// GeolocationGeoClueProvider streams location updates of the GeoClue2 system service.
type GeolocationGeoClueProvider struct {
	name      string
	desktopID string
	connectFn func(ctx context.Context) (*dbus.Conn, error)
}

// NewGeolocationGeoClueProvider returns a provider that registers with GeoClue under the
// given desktop id. GeoClue uses the id to look up the location permission of the app.
func NewGeolocationGeoClueProvider(desktopID string) *GeolocationGeoClueProvider {
	return &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		connectFn: func(ctx context.Context) (*dbus.Conn, error) {
			return dbus.ConnectSystemBus(dbus.WithContext(ctx))
		},
	}
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

// LookupStream registers a GeoClue client and emits a Result for every LocationUpdated signal.
func (p *GeolocationGeoClueProvider) LookupStream(ctx context.Context, accuracy float64) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)

		conn, err := p.connectFn(ctx)
		if err != nil {
			geobus.Send(ctx, out, geobus.ErrorResult(fmt.Errorf("%w: failed to connect to system bus: %s",
				geobus.ErrDisabled, err)))
			return
		}
		defer func() { _ = conn.Close() }()

		client, err := p.registerClient(ctx, conn, accuracy)
		if err != nil {
			geobus.Send(ctx, out, geobus.ErrorResult(err))
			return
		}

		if err = conn.AddMatchSignal(dbus.WithMatchObjectPath(client.Path()),
			dbus.WithMatchInterface(clientIface),
			dbus.WithMatchMember("LocationUpdated"),
		); err != nil {
			geobus.Send(ctx, out, geobus.ErrorResult(classifyError("failed to subscribe to location updates", err)))
			return
		}
		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		defer conn.RemoveSignal(sigCh)

		if err = client.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
			geobus.Send(ctx, out, geobus.ErrorResult(classifyError("failed to start geoclue client", err)))
			return
		}
		defer client.Call(clientIface+".Stop", 0)

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				if sig.Name != clientIface+".LocationUpdated" || len(sig.Body) != 2 {
					continue
				}
				path, ok := sig.Body[1].(dbus.ObjectPath)
				if !ok {
					continue
				}
				if !geobus.Send(ctx, out, p.readLocation(ctx, conn.Object(busName, path))) {
					return
				}
			}
		}
	}()

	return out
}

// registerClient requests a new client object from the GeoClue manager and configures it.
func (p *GeolocationGeoClueProvider) registerClient(ctx context.Context, conn *dbus.Conn, accuracy float64) (dbus.BusObject, error) {
	var clientPath dbus.ObjectPath
	manager := conn.Object(busName, managerPath)
	if err := manager.CallWithContext(ctx, managerIface+".GetClient", 0).Store(&clientPath); err != nil {
		return nil, classifyError("failed to get geoclue client", err)
	}

	client := conn.Object(busName, clientPath)
	if err := client.SetProperty(clientIface+".DesktopId", dbus.MakeVariant(p.desktopID)); err != nil {
		return nil, classifyError("failed to set desktop id", err)
	}
	if err := client.SetProperty(clientIface+".RequestedAccuracyLevel",
		dbus.MakeVariant(accuracyLevel(accuracy))); err != nil {
		return nil, classifyError("failed to set requested accuracy level", err)
	}
	return client, nil
}

func (p *GeolocationGeoClueProvider) readLocation(ctx context.Context, obj dbus.BusObject) geobus.Result {
	var props map[string]dbus.Variant
	if err := obj.CallWithContext(ctx, propsGetAll, 0, locationIface).Store(&props); err != nil {
		return geobus.ErrorResult(fmt.Errorf("%w: failed to read location properties: %s",
			geobus.ErrLocationUnknown, err))
	}
	reading, err := readingFromProperties(props)
	if err != nil {
		return geobus.ErrorResult(err)
	}
	reading.Source = p.name
	return geobus.Result{Reading: reading}
}

// readingFromProperties converts the properties of a GeoClue location object to a Reading.
func readingFromProperties(props map[string]dbus.Variant) (geobus.Reading, error) {
	var reading geobus.Reading
	var ok bool
	if reading.Lat, ok = floatProperty(props, "Latitude"); !ok {
		return reading, fmt.Errorf("%w: location has no latitude", geobus.ErrLocationUnknown)
	}
	if reading.Lon, ok = floatProperty(props, "Longitude"); !ok {
		return reading, fmt.Errorf("%w: location has no longitude", geobus.ErrLocationUnknown)
	}
	if reading.Accuracy, ok = floatProperty(props, "Accuracy"); !ok {
		reading.Accuracy = geobus.AccuracyUnknown
	}
	reading.Altitude, _ = floatProperty(props, "Altitude")

	reading.At = time.Now()
	if ts, exists := props["Timestamp"]; exists {
		if at, valid := parseTimestamp(ts.Value()); valid {
			reading.At = at
		}
	}
	return reading, nil
}

func floatProperty(props map[string]dbus.Variant, key string) (float64, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	f, ok := v.Value().(float64)
	return f, ok
}

// parseTimestamp parses the (tt) timestamp structure of seconds and microseconds since the epoch.
func parseTimestamp(v interface{}) (time.Time, bool) {
	fields, ok := v.([]interface{})
	if !ok || len(fields) != 2 {
		return time.Time{}, false
	}
	sec, ok := fields[0].(uint64)
	if !ok {
		return time.Time{}, false
	}
	usec, ok := fields[1].(uint64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)), true
}

// accuracyLevel maps the desired accuracy in meters to the matching GeoClue accuracy level.
func accuracyLevel(meters float64) uint32 {
	switch {
	case meters <= 100:
		return levelExact
	case meters <= 1000:
		return levelStreet
	case meters <= geobus.AccuracyZip:
		return levelNeighborhood
	case meters <= geobus.AccuracyCity:
		return levelCity
	default:
		return levelCountry
	}
}

// classifyError maps D-Bus errors to the geobus error kinds.
func classifyError(msg string, err error) error {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == accessDenied {
		return fmt.Errorf("%w: %s: %s", geobus.ErrDenied, msg, err)
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) && dbusErrPtr.Name == accessDenied {
		return fmt.Errorf("%w: %s: %s", geobus.ErrDenied, msg, err)
	}
	return fmt.Errorf("%w: %s: %s", geobus.ErrDisabled, msg, err)
}
