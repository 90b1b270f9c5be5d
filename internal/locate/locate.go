// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package locate implements the acquisition coordinator. It consumes readings of a
// position source, keeps the most accurate one, decides when to stop listening and
// resolves the best reading into an address.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/vartype"
)

// Source is a stream of position readings. Start and Stop must not invoke the listener
// synchronously and must not wait for listener calls in progress. A delivery racing
// with Stop may still arrive; the coordinator drops it because every listener is bound
// to its session id and only the current session accepts callbacks.
type Source interface {
	Start(ctx context.Context, accuracy float64, l geobus.Listener) error
	Stop()
}

// Coordinator owns the current acquisition session. All state transitions happen under
// a single mutex, so readings, errors, timer callbacks and geocode completions never
// interleave.
type Coordinator struct {
	log      *logger.Logger
	source   Source
	geocoder geocode.Geocoder
	policy   Policy
	recorder Recorder
	clock    clockwork.Clock

	mu      sync.Mutex
	nextID  uint64
	sess    *session
	subs    map[chan Snapshot]struct{}
	lookups sync.WaitGroup
}

type session struct {
	id       uint64
	ctx      context.Context
	desired  float64
	best     vartype.Variable[geobus.Reading]
	lastErr  error
	active   bool
	started  time.Time
	stopped  time.Time
	reason   StopReason
	stall    clockwork.Timer
	deadline clockwork.Timer
	release  func() bool

	address         vartype.Variable[geocode.Address]
	geocodeInFlight bool
	geocodeErr      error
	pending         vartype.Variable[geobus.Reading]
}

// New returns a Coordinator. The geocoder and recorder are optional.
func New(log *logger.Logger, source Source, geocoder geocode.Geocoder, policy Policy, recorder Recorder) (*Coordinator, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if source == nil {
		return nil, ErrNoSource
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Coordinator{
		log:      log,
		source:   source,
		geocoder: geocoder,
		policy:   policy.withDefaults(),
		recorder: recorder,
		clock:    clockwork.NewRealClock(),
		subs:     make(map[chan Snapshot]struct{}),
	}, nil
}

// Start begins a new acquisition with the given accuracy target in meters. If an
// acquisition is running, Start stops it instead, like a single start/stop button.
// The acquisition is stopped when ctx is done. Address lookups of the session keep
// running past that and are bounded by the geocoder's own timeouts.
func (c *Coordinator) Start(ctx context.Context, desired float64) error {
	if math.IsNaN(desired) || desired < 0 {
		return ErrInvalidAccuracy
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && c.sess.active {
		c.stopLocked(c.sess, ReasonUser, nil)
		c.publishLocked()
		return nil
	}

	c.nextID++
	s := &session{
		id:      c.nextID,
		ctx:     context.WithoutCancel(ctx),
		desired: desired,
		active:  true,
		started: c.clock.Now(),
	}
	c.sess = s

	if err := c.source.Start(ctx, desired, &listener{c: c, id: s.id}); err != nil {
		s.active = false
		s.stopped = s.started
		s.reason = ReasonError
		s.lastErr = fmt.Errorf("%w: %w", ErrSourceStart, err)
		c.log.Error("failed to start position source", logger.Err(err))
		c.publishLocked()
		return s.lastErr
	}

	s.stall = c.clock.AfterFunc(c.policy.StallTimeout, func() { c.onStallTimeout(s) })
	if c.policy.MaxDuration > 0 {
		s.deadline = c.clock.AfterFunc(c.policy.MaxDuration, func() { c.onDeadline(s) })
	}
	s.release = context.AfterFunc(ctx, func() { c.stopSession(s, ReasonUser) })

	c.recorder.SessionStarted()
	c.log.Info("location acquisition started", slog.Uint64("session", s.id),
		slog.Float64("desired_accuracy", desired))
	c.publishLocked()
	return nil
}

// Stop ends the running acquisition. The best reading and address are kept. Stop is a
// no-op if no acquisition is running.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil || !c.sess.active {
		return
	}
	c.stopLocked(c.sess, ReasonUser, nil)
	c.publishLocked()
}

// Snapshot returns the current state of the acquisition session.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers an observer for snapshot changes. The channel always eventually
// holds the most recent snapshot: when it is full, the oldest queued snapshot is
// dropped. The returned function unsubscribes and closes the channel.
func (c *Coordinator) Subscribe(size int) (<-chan Snapshot, func()) {
	if size < 1 {
		size = 1
	}
	ch := make(chan Snapshot, size)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// Wait blocks until all outstanding geocode calls have completed.
func (c *Coordinator) Wait() {
	c.lookups.Wait()
}

type listener struct {
	c  *Coordinator
	id uint64
}

func (l *listener) OnReading(r geobus.Reading) { l.c.onReading(l.id, r) }
func (l *listener) OnError(err error)          { l.c.onError(l.id, err) }

// current returns the session if it is the active session with the given id.
func (c *Coordinator) current(id uint64) *session {
	if c.sess == nil || c.sess.id != id || !c.sess.active {
		return nil
	}
	return c.sess
}

func (c *Coordinator) onReading(id uint64, r geobus.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current(id)
	if s == nil {
		return
	}

	now := c.clock.Now()
	if r.At.Before(now.Add(-c.policy.StaleAge)) {
		c.log.Debug("ignoring stale reading", slogReading(r), slog.Duration("age", now.Sub(r.At)))
		c.recorder.ReadingProcessed(VerdictStale)
		return
	}
	if !r.Valid() {
		c.log.Debug("ignoring invalid reading", slogReading(r))
		c.recorder.ReadingProcessed(VerdictInvalid)
		return
	}

	best, ok := s.best.Get()
	distance := math.Inf(1)
	if ok {
		distance = r.Distance(best.Coordinate)
	}

	if !ok || r.MoreAccurateThan(best) {
		s.lastErr = nil
		s.best.Set(r)
		c.recorder.ReadingProcessed(VerdictAccepted)
		c.log.Debug("accepted reading", slogReading(r))
		if r.Accuracy <= s.desired {
			c.stopLocked(s, ReasonAccuracyReached, nil)
		}
		c.requestGeocodeLocked(s, r)
		c.publishLocked()
		return
	}

	c.recorder.ReadingProcessed(VerdictIgnored)
	if distance < c.policy.StableDistance && r.At.Sub(best.At) > c.policy.StableAfter {
		c.log.Debug("position is stable", slogReading(r), slog.Float64("distance", distance))
		c.stopLocked(s, ReasonStable, nil)
		c.publishLocked()
	}
}

func (c *Coordinator) onError(id uint64, err error) {
	if geobus.IsTransient(err) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.current(id)
	if s == nil {
		return
	}
	c.log.Warn("position source failed", logger.Err(err))
	c.stopLocked(s, ReasonError, err)
	c.publishLocked()
}

func (c *Coordinator) onStallTimeout(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current(s.id) == nil || s.best.IsSet() {
		return
	}
	c.log.Warn("no location received in time", slog.Duration("timeout", c.policy.StallTimeout))
	c.stopLocked(s, ReasonTimeout, ErrTimeout)
	c.publishLocked()
}

func (c *Coordinator) onDeadline(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current(s.id) == nil {
		return
	}
	c.log.Warn("desired accuracy not reached in time", slog.Duration("deadline", c.policy.MaxDuration),
		slog.Float64("desired_accuracy", s.desired))
	c.stopLocked(s, ReasonTimeout, ErrTimeout)
	c.publishLocked()
}

// stopSession is the context callback; it only stops s if it is still current.
func (c *Coordinator) stopSession(s *session, reason StopReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current(s.id) == nil {
		return
	}
	c.stopLocked(s, reason, nil)
	c.publishLocked()
}

// stopLocked ends s without publishing. A non-nil err is recorded as last error.
func (c *Coordinator) stopLocked(s *session, reason StopReason, err error) {
	if !s.active {
		return
	}
	c.source.Stop()
	if s.stall != nil {
		s.stall.Stop()
	}
	if s.deadline != nil {
		s.deadline.Stop()
	}
	if s.release != nil {
		s.release()
	}
	s.active = false
	s.reason = reason
	s.stopped = c.clock.Now()
	if err != nil {
		s.lastErr = err
	}

	c.recorder.SessionFinished(reason)
	c.log.Info("location acquisition stopped", slog.Uint64("session", s.id),
		slog.String("reason", reason.String()), slog.Duration("elapsed", s.stopped.Sub(s.started)))
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := c.sess
	if s == nil {
		return Snapshot{}
	}
	return Snapshot{
		Session:         s.id,
		Best:            s.best,
		LastError:       s.lastErr,
		Active:          s.active,
		Address:         s.address,
		GeocodeInFlight: s.geocodeInFlight,
		GeocodeError:    s.geocodeErr,
		DesiredAccuracy: s.desired,
		StartedAt:       s.started,
		StoppedAt:       s.stopped,
		StopReason:      s.reason,
	}
}

func (c *Coordinator) publishLocked() {
	snap := c.snapshotLocked()
	for ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func slogReading(r geobus.Reading) slog.Attr {
	return slog.Group("reading",
		slog.String("source", r.Source),
		slog.String("coordinate", r.Coordinate.String()),
		slog.Float64("accuracy", r.Accuracy),
		slog.Time("at", r.At),
	)
}
