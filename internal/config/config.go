// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
	"golang.org/x/text/language"
)

const (
	configEnv         = "MYLOCATIONS"
	DefaultTextTpl    = "{{.Status}}"
	DefaultTooltipTpl = "Latitude: {{.Latitude}}\nLongitude: {{.Longitude}}\nAccuracy: {{.Accuracy}}\n" +
		"Address: {{.Address}}"
)

// Supported geocoder and store backends.
const (
	GeocoderNominatim    = "nominatim"
	GeocoderOpenCage     = "opencage"
	GeocoderGeocodeEarth = "geocode-earth"
	StoreMemory          = "memory"
	StorePostgres        = "postgres"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Acquisition struct {
		// Target accuracy in meters
		DesiredAccuracy float64       `fig:"desired_accuracy" default:"10"`
		StallTimeout    time.Duration `fig:"stall_timeout" default:"60s"`
		// Negative disables the deadline, zero uses the stall timeout
		MaxDuration    time.Duration `fig:"max_duration"`
		StaleAge       time.Duration `fig:"stale_age" default:"5s"`
		StableAfter    time.Duration `fig:"stable_after" default:"10s"`
		StableDistance float64       `fig:"stable_distance" default:"1"`
		// Zero disables periodic re-acquisition
		RefreshInterval time.Duration `fig:"refresh_interval"`
	} `fig:"acquisition"`

	GeoLocation struct {
		File                   string `fig:"file"`
		GPSDHost               string `fig:"gpsd_host" default:"localhost"`
		GPSDPort               string `fig:"gpsd_port" default:"2947"`
		ICHNAEAEndpoint        string `fig:"ichnaea_endpoint"`
		DisableGPSD            bool   `fig:"disable_gpsd"`
		DisableGeoClue         bool   `fig:"disable_geoclue"`
		DisableGeoAPI          bool   `fig:"disable_geoapi"`
		DisableGeolocationFile bool   `fig:"disable_geolocation_file"`
		DisableICHNAEA         bool   `fig:"disable_ichnaea"`
	} `fig:"geolocation"`

	Geocoder struct {
		// Allowed values: nominatim, opencage, geocode-earth
		Provider string        `fig:"provider" default:"nominatim"`
		APIKey   string        `fig:"apikey"`
		HitTTL   time.Duration `fig:"hit_ttl" default:"24h"`
		MissTTL  time.Duration `fig:"miss_ttl" default:"15m"`
	} `fig:"geocoder"`

	Store struct {
		// Allowed values: memory, postgres
		Driver string `fig:"driver" default:"memory"`
		DSN    string `fig:"dsn"`
	} `fig:"store"`

	Metrics struct {
		Listen string `fig:"listen"`
	} `fig:"metrics"`

	Templates struct {
		Text    string `fig:"text"`
		Tooltip string `fig:"tooltip"`
	} `fig:"templates"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Locale == "" {
		c.Locale = getLocale()
	}
	if c.Locale != "" {
		if _, err := language.Parse(c.Locale); err != nil {
			return fmt.Errorf("invalid locale %q: %w", c.Locale, err)
		}
	}

	acq := &c.Acquisition
	if math.IsNaN(acq.DesiredAccuracy) || acq.DesiredAccuracy < 0 {
		return fmt.Errorf("invalid desired accuracy: %f", acq.DesiredAccuracy)
	}
	if acq.StallTimeout <= 0 {
		return fmt.Errorf("invalid stall timeout: %s", acq.StallTimeout)
	}
	if acq.StaleAge <= 0 || acq.StableAfter <= 0 {
		return fmt.Errorf("invalid stale age or stable time: %s/%s", acq.StaleAge, acq.StableAfter)
	}
	if acq.StableDistance <= 0 {
		return fmt.Errorf("invalid stable distance: %f", acq.StableDistance)
	}
	if acq.RefreshInterval < 0 || (acq.RefreshInterval > 0 && acq.RefreshInterval < time.Minute) {
		return fmt.Errorf("invalid refresh interval: %s", acq.RefreshInterval)
	}

	switch c.Geocoder.Provider {
	case GeocoderNominatim:
	case GeocoderOpenCage, GeocoderGeocodeEarth:
		if c.Geocoder.APIKey == "" {
			return fmt.Errorf("geocoder %s requires an API key", c.Geocoder.Provider)
		}
	default:
		return fmt.Errorf("invalid geocoder provider: %s", c.Geocoder.Provider)
	}
	if c.Geocoder.HitTTL <= 0 || c.Geocoder.MissTTL <= 0 {
		return fmt.Errorf("invalid geocoder cache TTLs: %s/%s", c.Geocoder.HitTTL, c.Geocoder.MissTTL)
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store driver %s requires a DSN", c.Store.Driver)
		}
	default:
		return fmt.Errorf("invalid store driver: %s", c.Store.Driver)
	}

	if c.Templates.Text == "" {
		c.Templates.Text = DefaultTextTpl
	}
	if c.Templates.Tooltip == "" {
		c.Templates.Tooltip = DefaultTooltipTpl
	}
	if c.GeoLocation.File == "" {
		home, _ := os.UserHomeDir()
		c.GeoLocation.File = filepath.Join(home, ".config", "mylocations", "geolocation")
	}

	return nil
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		locale = locale[:idx]
	}
	if locale == "C" || locale == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(locale, "_", "-")
}
