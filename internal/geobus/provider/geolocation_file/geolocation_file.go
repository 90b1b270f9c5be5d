// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/mylocations/internal/geobus"
)

const (
	name = "geolocation_file"
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a fixed position from a file. Each non-comment line has the
// format "latitude,longitude[,accuracy]". The first valid line wins. Without an accuracy
// column the position is considered zip code accurate.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	nowFn    func() time.Time
	locateFn func() (geobus.Reading, error)
}

// NewGeolocationFileProvider returns a provider for the file at path.
func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Second * 15,
		nowFn:  time.Now,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream re-reads the file every period and emits its position. A file that can not
// be read or holds no coordinates ends the stream with ErrDisabled.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, _ float64) <-chan geobus.Result {
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

			reading, err := p.locateFn()
			if err != nil {
				geobus.Send(ctx, out, geobus.ErrorResult(fmt.Errorf("%w: %s", geobus.ErrDisabled, err)))
				return
			}
			if !geobus.Send(ctx, out, geobus.Result{Reading: reading}) {
				return
			}
		}
	}()
	return out
}

// readFile reads the first valid position from the file at the configured path.
func (p *GeolocationFileProvider) readFile() (geobus.Reading, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return geobus.Reading{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		reading, ok := parseLine(line)
		if !ok {
			continue
		}
		reading.At = p.nowFn()
		reading.Source = p.name
		return reading, nil
	}
	return geobus.Reading{}, ErrNoCoordinates
}

func parseLine(line string) (geobus.Reading, bool) {
	var reading geobus.Reading
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return reading, false
	}
	fields := strings.Split(line, ",")
	if len(fields) != 2 && len(fields) != 3 {
		return reading, false
	}

	var err error
	if reading.Lat, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64); err != nil {
		return reading, false
	}
	if reading.Lon, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64); err != nil {
		return reading, false
	}
	reading.Accuracy = geobus.AccuracyZip
	if len(fields) == 3 {
		if reading.Accuracy, err = strconv.ParseFloat(strings.TrimSpace(fields[2]), 64); err != nil {
			return reading, false
		}
	}
	return reading, reading.Valid()
}
