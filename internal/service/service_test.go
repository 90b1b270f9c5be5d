// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"testing/synctest"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/mylocations/internal/config"
	"github.com/wneessen/mylocations/internal/geobus"
	"github.com/wneessen/mylocations/internal/geocode"
	"github.com/wneessen/mylocations/internal/i18n"
	"github.com/wneessen/mylocations/internal/locate"
	"github.com/wneessen/mylocations/internal/logger"
	"github.com/wneessen/mylocations/internal/presenter"
	"github.com/wneessen/mylocations/internal/store"
)

const testPosition = "52.516275,13.377704,5"

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		_, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
	})
	t.Run("initializing service with different geocode providers", func(t *testing.T) {
		tests := []struct {
			name     string
			env      []string
			wantName string
			wantFail bool
		}{
			{
				"osm-nominatim",
				[]string{"MYLOCATIONS_GEOCODER_PROVIDER=nominatim"},
				"osm-nominatim",
				false,
			},
			{
				"opencage with api-key",
				[]string{
					"MYLOCATIONS_GEOCODER_PROVIDER=opencage",
					"MYLOCATIONS_GEOCODER_APIKEY=abc",
				},
				"opencage",
				false,
			},
			{
				"geocode.earth with api-key",
				[]string{
					"MYLOCATIONS_GEOCODER_PROVIDER=geocode-earth",
					"MYLOCATIONS_GEOCODER_APIKEY=abc",
				},
				"geocode-earth",
				false,
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				for _, envVars := range tc.env {
					vals := strings.Split(envVars, "=")
					if len(vals) != 2 {
						t.Fatalf("invalid env var %q", envVars)
					}
					t.Setenv(vals[0], vals[1])
				}
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				name := fmt.Sprintf("geocoder cache using %s", tc.wantName)
				if serv.geocoder.Name() != name {
					t.Errorf("expected geocoder name to be %q, got %q", name, serv.geocoder.Name())
				}
			})
		}
	})
	t.Run("geocode provider selection fails on invalid settings", func(t *testing.T) {
		tests := []struct {
			name    string
			confFn  func(*config.Config)
			wantErr string
		}{
			{"unsupported", func(c *config.Config) { c.Geocoder.Provider = "invalid" }, "unsupported geocoder type"},
			{"opencage without key", func(c *config.Config) {
				c.Geocoder.Provider = config.GeocoderOpenCage
				c.Geocoder.APIKey = ""
			}, "requires an API key"},
			{"geocode-earth without key", func(c *config.Config) {
				c.Geocoder.Provider = config.GeocoderGeocodeEarth
				c.Geocoder.APIKey = ""
			}, "requires an API key"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				tc.confFn(serv.config)
				_, err = selectGeocodeProvider(serv.config, serv.logger, i18n.Detect("en"))
				if err == nil {
					t.Fatal("expected geocode provider selection to fail")
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("expected error to contain %q, got %q", tc.wantErr, err)
				}
			})
		}
	})
	t.Run("invalid template configuration should fail", func(t *testing.T) {
		t.Setenv("MYLOCATIONS_TEMPLATES_TEXT", "{{")
		_, err := testService(t, false)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "failed to parse template"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("nil logger fails", func(t *testing.T) {
		_, err := testService(t, true)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "logger is required"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("nil localizer fails", func(t *testing.T) {
		conf, err := config.New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if _, err = New(conf, logger.NewLogger(slog.LevelError, io.Discard), nil); err == nil {
			t.Fatal("expected service creation to fail")
		}
	})
}

func TestService_RunOnce(t *testing.T) {
	t.Run("acquisition stops at the accuracy target and resolves the address", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.output = buf

		snap, err := serv.RunOnce(t.Context())
		if err != nil {
			t.Fatalf("failed to run acquisition: %s", err)
		}
		if snap.StopReason != locate.ReasonAccuracyReached {
			t.Errorf("expected stop reason %s, got %s", locate.ReasonAccuracyReached, snap.StopReason)
		}
		best, ok := snap.Best.Get()
		if !ok {
			t.Fatal("expected a best reading")
		}
		if best.Accuracy != 5 || best.Source != "geolocation_file" {
			t.Errorf("unexpected best reading: %+v", best)
		}
		if !snap.Address.Value().AddressFound {
			t.Error("expected address to be resolved")
		}

		outputs := decodeOutputs(t, buf.String())
		if len(outputs) < 2 {
			t.Fatalf("expected at least 2 output lines, got %d", len(outputs))
		}
		last := outputs[len(outputs)-1]
		if last.Text != "1 Pariser Platz, Berlin, Berlin 10117, Germany" {
			t.Errorf("unexpected text: %q", last.Text)
		}
		if last.Class != "mylocations-located" {
			t.Errorf("unexpected class: %q", last.Class)
		}
	})
	t.Run("missing geolocation file fails the acquisition", func(t *testing.T) {
		serv := testFileService(t, "")
		serv.config.GeoLocation.File = filepath.Join(t.TempDir(), "missing")
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.output = buf

		snap, err := serv.RunOnce(t.Context())
		if err != nil {
			t.Fatalf("failed to run acquisition: %s", err)
		}
		if snap.State() != locate.StateFailed {
			t.Errorf("expected state %s, got %s", locate.StateFailed, snap.State())
		}
		if !errors.Is(snap.LastError, geobus.ErrDisabled) {
			t.Errorf("expected disabled error, got %v", snap.LastError)
		}
		if !strings.Contains(buf.String(), string(presenter.MsgDisabled)) {
			t.Errorf("expected disabled message in output, got %q", buf.String())
		}
	})
	t.Run("canceled context ends the acquisition", func(t *testing.T) {
		serv := testFileService(t, "# no position yet")
		serv.output = io.Discard
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		if _, err := serv.RunOnce(ctx); err == nil {
			t.Error("expected acquisition to fail")
		}
	})
	t.Run("no enabled providers fails", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		serv.config.GeoLocation.DisableGeolocationFile = true
		_, err := serv.RunOnce(t.Context())
		if err == nil {
			t.Fatal("expected acquisition to fail")
		}
		wantErr := `failed to create geobus orchestrator: no geolocation providers enabled`
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.output = buf

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		errCh := make(chan error, 1)
		go func() {
			errCh <- serv.Run(ctx)
		}()

		waitFor(t, func() bool { return strings.Contains(buf.String(), "mylocations-located") })
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("failed to run service: %s", err)
			}
		case <-time.After(time.Second * 5):
			t.Fatal("service did not shut down")
		}
	})
	t.Run("starting service fails due to invalid store", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		serv.config.Store.Driver = "invalid"
		err := serv.Run(t.Context())
		if err == nil {
			t.Fatal("expected service to fail")
		}
		wantErr := "failed to open record store: unsupported store driver: invalid"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
}

func TestService_Tag(t *testing.T) {
	t.Run("tagging the acquired location saves a record", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		serv.output = io.Discard
		snap, err := serv.RunOnce(t.Context())
		if err != nil {
			t.Fatalf("failed to run acquisition: %s", err)
		}

		record, err := serv.Tag(t.Context(), snap, "Brandenburg Gate", "Landmark")
		if err != nil {
			t.Fatalf("failed to tag location: %s", err)
		}
		if record.Latitude != 52.516275 || record.Accuracy != 5 {
			t.Errorf("unexpected record: %+v", record)
		}
		if !strings.Contains(record.Address, "Pariser Platz") {
			t.Errorf("unexpected address: %q", record.Address)
		}

		records, err := serv.Records(t.Context())
		if err != nil {
			t.Fatalf("failed to list records: %s", err)
		}
		if len(records) != 1 || records[0].ID != record.ID {
			t.Errorf("expected the tagged record to be listed, got %+v", records)
		}
		rendered := serv.RenderRecord(records[0])
		if !strings.Contains(rendered, "Brandenburg Gate") {
			t.Errorf("unexpected rendered record: %q", rendered)
		}
	})
	t.Run("tagging without a reading fails", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		_, err := serv.Tag(t.Context(), locate.Snapshot{}, "", store.DefaultCategory)
		if !errors.Is(err, store.ErrNoLocation) {
			t.Errorf("expected ErrNoLocation, got %v", err)
		}
	})
	t.Run("tagging with an unknown category fails", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		serv.output = io.Discard
		snap, err := serv.RunOnce(t.Context())
		if err != nil {
			t.Fatalf("failed to run acquisition: %s", err)
		}
		if _, err = serv.Tag(t.Context(), snap, "", "Spaceport"); !errors.Is(err, store.ErrInvalidCategory) {
			t.Errorf("expected ErrInvalidCategory, got %v", err)
		}
	})
	t.Run("storage failures are reported", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		serv.output = io.Discard
		snap, err := serv.RunOnce(t.Context())
		if err != nil {
			t.Fatalf("failed to run acquisition: %s", err)
		}
		serv.store = &failStore{}
		_, err = serv.Tag(t.Context(), snap, "", store.DefaultCategory)
		var storageErr *store.StorageError
		if !errors.As(err, &storageErr) {
			t.Fatalf("expected storage error, got %v", err)
		}
	})
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal toggles the acquisition", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv := testFileService(t, testPosition)
		serv.output = io.Discard
		if err := serv.init(ctx); err != nil {
			t.Fatalf("failed to initialize service: %s", err)
		}
		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR1
		waitFor(t, func() bool { return serv.coordinator.Snapshot().Session == 1 })
		waitFor(t, func() bool { return serv.coordinator.Snapshot().State() == locate.StateSucceeded })

		sigChan <- syscall.SIGUSR1
		waitFor(t, func() bool { return serv.coordinator.Snapshot().Session == 2 })
	})
	t.Run("USR2 signal without a location logs a warning", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv := testFileService(t, testPosition)
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR2
		waitFor(t, func() bool { return strings.Contains(buf.String(), `msg="no location to tag yet"`) })
	})
	t.Run("USR2 signal tags the current location", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv := testFileService(t, testPosition)
		serv.output = io.Discard
		records := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.recordOutput = records
		if _, err := serv.RunOnce(ctx); err != nil {
			t.Fatalf("failed to run acquisition: %s", err)
		}

		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)
		sigChan <- syscall.SIGUSR2
		waitFor(t, func() bool { return strings.Contains(records.String(), store.DefaultCategory) })
		if !strings.Contains(records.String(), "Pariser Platz") {
			t.Errorf("expected rendered record to contain the address, got %q", records.String())
		}
	})
	t.Run("USR2 signal logs storage failures", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		serv := testFileService(t, testPosition)
		serv.output = io.Discard
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		if _, err := serv.RunOnce(ctx); err != nil {
			t.Fatalf("failed to run acquisition: %s", err)
		}
		serv.store = &failStore{}

		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)
		sigChan <- syscall.SIGUSR2
		waitFor(t, func() bool { return strings.Contains(buf.String(), `msg="failed to save location" operation=create`) })
	})
}

func TestService_selectGeobusProviders(t *testing.T) {
	t.Run("all providers disabled fails", func(t *testing.T) {
		serv := testFileService(t, testPosition)
		serv.config.GeoLocation.DisableGeolocationFile = true
		if _, err := serv.selectGeobusProviders(); err == nil {
			t.Fatal("expected provider selection to fail")
		}
	})
	t.Run("all providers enabled", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		providers, err := serv.selectGeobusProviders()
		if err != nil {
			t.Fatalf("failed to select providers: %s", err)
		}
		if len(providers) != 5 {
			t.Errorf("expected 5 providers, got %d", len(providers))
		}
	})
}

func TestOpenStore(t *testing.T) {
	conf, err := config.New()
	if err != nil {
		t.Fatalf("failed to load config: %s", err)
	}
	recordStore, closeFn, err := openStore(t.Context(), conf)
	if err != nil {
		t.Fatalf("failed to open memory store: %s", err)
	}
	if recordStore == nil {
		t.Fatal("expected store to be non-nil")
	}
	if err = closeFn(); err != nil {
		t.Errorf("failed to close store: %s", err)
	}

	conf.Store.Driver = "invalid"
	if _, _, err = openStore(t.Context(), conf); err == nil {
		t.Error("expected unsupported store driver to fail")
	}
}

func TestMetricsServer(t *testing.T) {
	serv := testFileService(t, testPosition)
	serv.output = io.Discard
	if _, err := serv.RunOnce(t.Context()); err != nil {
		t.Fatalf("failed to run acquisition: %s", err)
	}
	srv := newMetricsServer("127.0.0.1:0", serv.registry, serv.logger)

	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/metrics", nil))
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	for _, want := range []string{
		"mylocations_sessions_started_total 1",
		`mylocations_sessions_finished_total{reason="accuracy_reached"} 1`,
		`mylocations_readings_total{verdict="accepted"}`,
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}

	rec = httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/healthz", nil))
	if rec.Code != stdhttp.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestSleepMonitor_handle(t *testing.T) {
	resumed := atomic.Int32{}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	monitor := newSleepMonitor(logger.NewLogger(slog.LevelError, io.Discard), func(context.Context) {
		resumed.Add(1)
	})
	monitor.wakeupDelay = 0
	monitor.now = func() time.Time { return now }

	signals := []struct {
		name    string
		sgn     *dbus.Signal
		advance time.Duration
		want    int32
	}{
		{"going to sleep", &dbus.Signal{Body: []interface{}{true}}, 0, 0},
		{"resume", &dbus.Signal{Body: []interface{}{false}}, 0, 1},
		{"repeated resume is debounced", &dbus.Signal{Body: []interface{}{false}}, time.Second, 1},
		{"invalid body", &dbus.Signal{Body: []interface{}{"false"}}, time.Minute, 1},
		{"empty body", &dbus.Signal{}, 0, 1},
		{"later resume", &dbus.Signal{Body: []interface{}{false}}, 0, 2},
	}
	for _, tc := range signals {
		now = now.Add(tc.advance)
		monitor.handle(t.Context(), tc.sgn)
		if got := resumed.Load(); got != tc.want {
			t.Errorf("%s: expected %d resume calls, got %d", tc.name, tc.want, got)
		}
	}
}

func TestSleepMonitor_run(t *testing.T) {
	t.Run("run returns on canceled context without bus", func(t *testing.T) {
		monitor := newSleepMonitor(logger.NewLogger(slog.LevelError, io.Discard), func(context.Context) {})
		monitor.connect = func(...dbus.ConnOption) (*dbus.Conn, error) { return nil, errors.New("no bus") }
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		done := make(chan struct{})
		go func() {
			monitor.run(ctx)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("monitor did not return")
		}
	})
	t.Run("unavailable bus is retried", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			monitor := newSleepMonitor(logger.NewLogger(slog.LevelError, io.Discard), func(context.Context) {})
			if monitor.connect == nil {
				t.Fatal("expected system bus connector to be set")
			}
			attempts := atomic.Int32{}
			monitor.connect = func(opts ...dbus.ConnOption) (*dbus.Conn, error) {
				if len(opts) != 0 {
					t.Errorf("expected no connection options, got %d", len(opts))
				}
				attempts.Add(1)
				return nil, errors.New("no bus")
			}
			ctx, cancel := context.WithCancel(t.Context())
			done := make(chan struct{})
			go func() {
				monitor.run(ctx)
				close(done)
			}()

			time.Sleep(busReconnectDelay*2 + time.Second)
			if got := attempts.Load(); got != 3 {
				t.Errorf("expected 3 connection attempts, got %d", got)
			}
			cancel()
			<-done
		})
	})
}

// testService returns a service with English output. Providers and geocoder are the
// configured ones.
func testService(t *testing.T, nilLogger bool) (*Service, error) {
	t.Helper()
	t.Setenv("MYLOCATIONS_LOCALE", "en")
	conf, err := config.New()
	if err != nil {
		return nil, err
	}

	var log *logger.Logger
	if !nilLogger {
		log = logger.NewLogger(conf.LogLevel, io.Discard)
	}

	lang, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, err
	}
	return New(conf, log, lang)
}

// testFileService returns a service that only uses a geolocation file with content and
// resolves addresses with mockGeocoder.
func testFileService(t *testing.T, content string) *Service {
	t.Helper()
	file := filepath.Join(t.TempDir(), "geolocation")
	if err := os.WriteFile(file, []byte(content+"\n"), 0o600); err != nil {
		t.Fatalf("failed to write geolocation file: %s", err)
	}
	t.Setenv("MYLOCATIONS_GEOLOCATION_FILE", file)
	for _, env := range []string{
		"MYLOCATIONS_GEOLOCATION_DISABLE_GPSD",
		"MYLOCATIONS_GEOLOCATION_DISABLE_GEOCLUE",
		"MYLOCATIONS_GEOLOCATION_DISABLE_GEOAPI",
		"MYLOCATIONS_GEOLOCATION_DISABLE_ICHNAEA",
	} {
		t.Setenv(env, "true")
	}

	serv, err := testService(t, false)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	serv.geocoder = &mockGeocoder{}
	t.Cleanup(serv.Close)
	return serv
}

func decodeOutputs(t *testing.T, data string) []presenter.Output {
	t.Helper()
	var outputs []presenter.Output
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		var output presenter.Output
		if err := json.Unmarshal(scanner.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		outputs = append(outputs, output)
	}
	return outputs
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second * 5)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond * 10)
	}
	t.Fatal("condition not met in time")
}

type (
	failStore    struct{}
	mockGeocoder struct{ shouldFail bool }
	syncBuffer   struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func (f *failStore) Create(context.Context, *store.Record) error {
	return &store.StorageError{Op: "create", Err: errors.New("disk full")}
}

func (f *failStore) List(context.Context) ([]store.Record, error) {
	return nil, &store.StorageError{Op: "list", Err: errors.New("disk full")}
}

func (m *mockGeocoder) Name() string {
	return "mock geocoder"
}

func (m *mockGeocoder) Reverse(_ context.Context, coords geobus.Coordinate) ([]geocode.Address, error) {
	if m.shouldFail {
		return nil, errors.New("intentionally failing")
	}
	return []geocode.Address{{
		AddressFound: true,
		Latitude:     coords.Lat,
		Longitude:    coords.Lon,
		HouseNumber:  "1",
		Street:       "Pariser Platz",
		City:         "Berlin",
		State:        "Berlin",
		Postcode:     "10117",
		Country:      "Germany",
	}}, nil
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
