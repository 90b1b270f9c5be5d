// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vorlif/spreak"

	"github.com/wneessen/mylocations/internal/config"
	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
	"github.com/wneessen/mylocations/internal/i18n"
	"github.com/wneessen/mylocations/internal/locate"
	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/observability"
	"github.com/wneessen/mylocations/internal/presenter"
	"github.com/wneessen/mylocations/internal/store"
)

const (
	DesktopID        = "mylocations"
	snapshotBuffer   = 16
	refreshJobName   = "location_refresh_job"
	shutdownTimeout  = 5 * time.Second
	saveTimeout      = 10 * time.Second
	geocodeDrainWait = 15 * time.Second
)

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	t         *spreak.Localizer
	presenter *presenter.Presenter
	geocoder  geocode.Geocoder
	metrics   *observability.Metrics
	registry  *prometheus.Registry
	scheduler gocron.Scheduler
	output    io.Writer
	SignalSrc signalSource

	// tagged records are rendered here, keeping the snapshot output line based
	recordOutput io.Writer

	// set up by init
	initOnce     sync.Once
	initErr      error
	orchestrator *geobus.Orchestrator
	coordinator  *locate.Coordinator
	store        store.RecordStore
	closeStore   func() error

	outputLock sync.Mutex
}

func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if conf == nil {
		return nil, errors.New("config is required")
	}
	if t == nil {
		return nil, errors.New("localizer is required")
	}

	pres, err := presenter.New(conf, t)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	geocoder, err := selectGeocodeProvider(conf, log, i18n.Detect(conf.Locale))
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode provider: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Service{
		config:    conf,
		logger:    log,
		t:         t,
		presenter: pres,
		geocoder:  geocoder,
		metrics:   observability.NewMetrics(registry),
		registry:  registry,
		scheduler: scheduler,
		output:    os.Stdout,
		SignalSrc: stdLibSignalSource{},

		recordOutput: os.Stderr,
	}, nil
}

// init creates the position providers, the coordinator and the record store.
func (s *Service) init(ctx context.Context) error {
	s.initOnce.Do(func() {
		providers, err := s.selectGeobusProviders()
		if err != nil {
			s.initErr = fmt.Errorf("failed to create geobus orchestrator: %w", err)
			return
		}
		s.orchestrator, err = geobus.NewOrchestrator(s.logger, providers...)
		if err != nil {
			s.initErr = fmt.Errorf("failed to create geobus orchestrator: %w", err)
			return
		}

		acq := s.config.Acquisition
		policy := locate.Policy{
			StallTimeout:   acq.StallTimeout,
			MaxDuration:    acq.MaxDuration,
			StaleAge:       acq.StaleAge,
			StableAfter:    acq.StableAfter,
			StableDistance: acq.StableDistance,
		}
		s.coordinator, err = locate.New(s.logger, s.orchestrator, s.geocoder, policy, s.metrics)
		if err != nil {
			s.initErr = fmt.Errorf("failed to create coordinator: %w", err)
			return
		}

		s.store, s.closeStore, err = openStore(ctx, s.config)
		if err != nil {
			s.initErr = fmt.Errorf("failed to open record store: %w", err)
		}
	})
	return s.initErr
}

// Run starts an acquisition and prints every published snapshot until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.init(ctx); err != nil {
		return err
	}
	defer s.close()

	if s.config.Acquisition.RefreshInterval > 0 {
		if err := s.createScheduledJob(ctx, s.config.Acquisition.RefreshInterval, s.refreshLocation,
			refreshJobName); err != nil {
			return err
		}
	}
	s.scheduler.Start()

	if s.config.Metrics.Listen != "" {
		srv := newMetricsServer(s.config.Metrics.Listen, s.registry, s.logger)
		go srv.serve(ctx)
	}
	go s.monitorSleepResume(ctx)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	defer s.SignalSrc.Stop(sigChan)
	go s.HandleSignals(ctx, sigChan)

	snapshots, unsubscribe := s.coordinator.Subscribe(snapshotBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.printSnapshots(snapshots)
	}()

	if err := s.coordinator.Start(ctx, s.config.Acquisition.DesiredAccuracy); err != nil {
		s.logger.Error("failed to start location acquisition", logger.Err(err))
	}

	<-ctx.Done()
	s.coordinator.Stop()
	unsubscribe()
	<-done
	return s.scheduler.Shutdown()
}

// RunOnce runs a single acquisition and returns its terminal snapshot once outstanding
// address lookups have finished.
func (s *Service) RunOnce(ctx context.Context) (locate.Snapshot, error) {
	if err := s.init(ctx); err != nil {
		return locate.Snapshot{}, err
	}

	snapshots, unsubscribe := s.coordinator.Subscribe(snapshotBuffer)
	defer unsubscribe()
	if err := s.coordinator.Start(ctx, s.config.Acquisition.DesiredAccuracy); err != nil {
		return s.coordinator.Snapshot(), err
	}

	for {
		select {
		case <-ctx.Done():
			s.coordinator.Stop()
			return s.coordinator.Snapshot(), ctx.Err()
		case snap := <-snapshots:
			s.printSnapshot(snap)
			if !snap.State().Terminal() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return snap, err
			}
			if !snap.GeocodeInFlight {
				return snap, nil
			}
			s.waitForGeocode()
			final := s.coordinator.Snapshot()
			s.printSnapshot(final)
			return final, nil
		}
	}
}

// Tag saves the best reading of snap as a record.
func (s *Service) Tag(ctx context.Context, snap locate.Snapshot, description, category string) (*store.Record, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	best, ok := snap.Best.Get()
	if !ok {
		return nil, store.ErrNoLocation
	}
	record, err := store.NewRecord(best, snap.Address.Value(), description, category, time.Now())
	if err != nil {
		return nil, err
	}

	ctxSave, cancelSave := context.WithTimeout(ctx, saveTimeout)
	defer cancelSave()
	err = s.store.Create(ctxSave, record)
	s.metrics.RecordSaved(err)
	if err != nil {
		return nil, err
	}
	s.logger.Info("location tagged", slog.String("id", record.ID.String()),
		slog.String("category", record.Category), slog.String("address", record.Address))
	return record, nil
}

// RenderRecord renders a saved record for display.
func (s *Service) RenderRecord(record store.Record) string {
	return s.presenter.RenderRecord(record)
}

// Records returns all saved records.
func (s *Service) Records(ctx context.Context) ([]store.Record, error) {
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// Close releases the record store.
func (s *Service) Close() {
	s.close()
}

func (s *Service) close() {
	if s.closeStore == nil {
		return
	}
	if err := s.closeStore(); err != nil {
		s.logger.Error("failed to close record store", logger.Err(err))
	}
	s.closeStore = nil
}

// refreshLocation starts a new acquisition unless one is running.
func (s *Service) refreshLocation(ctx context.Context) {
	if s.coordinator.Snapshot().Active {
		return
	}
	s.logger.Debug("refreshing location")
	if err := s.coordinator.Start(ctx, s.config.Acquisition.DesiredAccuracy); err != nil {
		s.logger.Error("failed to start location acquisition", logger.Err(err))
	}
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

func (s *Service) printSnapshots(snapshots <-chan locate.Snapshot) {
	for snap := range snapshots {
		s.printSnapshot(snap)
	}
}

// printSnapshot renders snap and writes it as a JSON line to the output.
func (s *Service) printSnapshot(snap locate.Snapshot) {
	output, err := s.presenter.Render(snap)
	if err != nil {
		s.logger.Error("failed to render snapshot", logger.Err(err))
		return
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode snapshot", logger.Err(err))
	}
}

// waitForGeocode waits for outstanding address lookups, at most geocodeDrainWait.
func (s *Service) waitForGeocode() {
	done := make(chan struct{})
	go func() {
		s.coordinator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(geocodeDrainWait):
		s.logger.Warn("address lookup did not finish in time")
	}
}
