// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/store"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals reacts to user signals while the service is running. SIGUSR1 toggles the
// acquisition, SIGUSR2 tags the current location with the default category.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				s.toggleAcquisition(ctx)
			case syscall.SIGUSR2:
				s.tagCurrentLocation(ctx)
			}
		}
	}
}

func (s *Service) toggleAcquisition(ctx context.Context) {
	if err := s.init(ctx); err != nil {
		s.logger.Error("failed to initialize service", logger.Err(err))
		return
	}
	if err := s.coordinator.Start(ctx, s.config.Acquisition.DesiredAccuracy); err != nil {
		s.logger.Error("failed to toggle location acquisition", logger.Err(err))
	}
}

// tagCurrentLocation saves the current best reading. Failures are logged and never
// end the service.
func (s *Service) tagCurrentLocation(ctx context.Context) {
	if err := s.init(ctx); err != nil {
		s.logger.Error("failed to initialize service", logger.Err(err))
		return
	}
	record, err := s.Tag(ctx, s.coordinator.Snapshot(), "", store.DefaultCategory)
	if err != nil {
		var storageErr *store.StorageError
		switch {
		case errors.Is(err, store.ErrNoLocation):
			s.logger.Warn("no location to tag yet")
		case errors.As(err, &storageErr):
			s.logger.Error("failed to save location", slog.String("operation", storageErr.Op), logger.Err(err))
		default:
			s.logger.Error("failed to tag location", logger.Err(err))
		}
		return
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if _, err = fmt.Fprintln(s.recordOutput, s.presenter.RenderRecord(*record)); err != nil {
		s.logger.Error("failed to print tagged location", logger.Err(err))
	}
}
