// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package locate

import (
	"log/slog"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
	"github.com/wneessen/mylocations/internal/logger"
)

// requestGeocodeLocked resolves r, or parks it as the pending replacement if a lookup of
// the session is still outstanding. Only the latest pending reading is kept.
func (c *Coordinator) requestGeocodeLocked(s *session, r geobus.Reading) {
	if c.geocoder == nil {
		return
	}
	if s.geocodeInFlight {
		s.pending.Set(r)
		return
	}
	s.geocodeInFlight = true
	c.lookupLocked(s, r)
}

func (c *Coordinator) lookupLocked(s *session, r geobus.Reading) {
	c.lookups.Add(1)
	go func() {
		defer c.lookups.Done()
		addresses, err := c.geocoder.Reverse(s.ctx, r.Coordinate)
		c.onGeocodeResult(s, r, addresses, err)
	}()
}

func (c *Coordinator) onGeocodeResult(s *session, r geobus.Reading, addresses []geocode.Address, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := c.applyGeocodeLocked(s, r, addresses, err)
	c.recorder.GeocodeCompleted(outcome)

	next, ok := s.pending.Get()
	s.pending.Reset()
	switch {
	case ok && c.sess == s:
		c.lookupLocked(s, next)
	default:
		s.geocodeInFlight = false
	}

	if c.sess == s {
		c.publishLocked()
	}
}

func (c *Coordinator) applyGeocodeLocked(s *session, r geobus.Reading, addresses []geocode.Address, err error) GeocodeOutcome {
	if c.sess != s {
		return GeocodeStale
	}
	if best, ok := s.best.Get(); ok && best.MoreAccurateThan(r) {
		c.log.Debug("discarding geocode result of superseded reading", slogReading(r))
		return GeocodeStale
	}

	switch {
	case err != nil:
		s.geocodeErr = err
		c.log.Warn("failed to resolve address", logger.Err(err), slog.String("geocoder", c.geocoder.Name()),
			slog.String("coordinate", r.Coordinate.String()))
		return GeocodeError
	case len(addresses) == 0:
		s.geocodeErr = nil
		s.address.Set(geocode.Address{})
		return GeocodeEmpty
	default:
		s.geocodeErr = nil
		s.address.Set(addresses[len(addresses)-1])
		return GeocodeFound
	}
}
