// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/mylocations/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	resumeDebounce   = 5 * time.Second
	signalBufferSize = 4

	busReconnectDelay   = 5 * time.Second
	networkWakeupDelay  = 10 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// sleepMonitor watches logind on the system bus and calls onResume after the machine
// woke up from suspend.
type sleepMonitor struct {
	logger      *logger.Logger
	onResume    func(context.Context)
	connect     func(...dbus.ConnOption) (*dbus.Conn, error)
	now         func() time.Time
	wakeupDelay time.Duration
	lastResume  atomic.Int64
}

func newSleepMonitor(log *logger.Logger, onResume func(context.Context)) *sleepMonitor {
	return &sleepMonitor{
		logger:      log,
		onResume:    onResume,
		connect:     dbus.ConnectSystemBus,
		now:         time.Now,
		wakeupDelay: networkWakeupDelay,
	}
}

// monitorSleepResume re-acquires the location whenever the system resumes.
func (s *Service) monitorSleepResume(ctx context.Context) {
	newSleepMonitor(s.logger, func(ctx context.Context) {
		s.logger.Debug("resumed from sleep, re-acquiring location")
		s.coordinator.Stop()
		s.refreshLocation(ctx)
	}).run(ctx)
}

// run blocks until ctx is done and reconnects whenever the bus connection is lost.
func (m *sleepMonitor) run(ctx context.Context) {
	for {
		conn := m.dial(ctx)
		if conn == nil {
			return
		}
		if !m.subscribe(ctx, conn) {
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		m.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember))
		m.watch(ctx, sigCh)

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			m.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		if !sleepCtx(ctx, busReconnectDelay) {
			return
		}
	}
}

// dial returns nil once ctx is canceled.
func (m *sleepMonitor) dial(ctx context.Context) *dbus.Conn {
	for {
		conn, err := m.connect()
		if err != nil {
			m.logger.Debug("system bus not available", logger.Err(err))
			if !sleepCtx(ctx, busReconnectDelay) {
				return nil
			}
			continue
		}
		context.AfterFunc(ctx, func() {
			_ = conn.Close()
		})
		return conn
	}
}

func (m *sleepMonitor) subscribe(ctx context.Context, conn *dbus.Conn) bool {
	err := conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface), dbus.WithMatchMember(dbusWatchMember))
	if err == nil {
		return true
	}
	m.logger.Error("failed to subscribe to dbus signal", slog.String("interface", dbusInterface),
		slog.String("member", dbusWatchMember), logger.Err(err))
	if err = conn.Close(); err != nil {
		m.logger.Error("failed to close system bus connection", logger.Err(err))
	}
	sleepCtx(ctx, subscribeRetryDelay)
	return false
}

func (m *sleepMonitor) watch(ctx context.Context, sigCh <-chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			m.handle(ctx, sgn)
		}
	}
}

// handle acts on PrepareForSleep(false), which logind emits on resume. Resume events
// within resumeDebounce of the last one are dropped.
func (m *sleepMonitor) handle(ctx context.Context, sgn *dbus.Signal) {
	if sgn == nil || len(sgn.Body) != 1 {
		return
	}
	if sleeping, ok := sgn.Body[0].(bool); !ok || sleeping {
		return
	}

	now := m.now()
	last := m.lastResume.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < resumeDebounce {
		return
	}
	m.lastResume.Store(now.UnixNano())

	// network based providers need a moment after wake-up
	if !sleepCtx(ctx, m.wakeupDelay) {
		return
	}
	m.onResume(ctx)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
