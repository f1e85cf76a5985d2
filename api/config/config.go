package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	// The default delay after which an idle connected session disconnects.
	DefaultIdleTimeout = 5 * time.Second

	// The default timeout duration for authentication requests.
	DefaultAuthTimeout = 10 * time.Second

	// The default number of link attempts before a session gives up.
	DefaultLinkAttempts = 5

	// The default initial interval between link attempts.
	DefaultLinkInterval = 500 * time.Millisecond

	// The default delay before an automatic session restart after an
	// authentication failure.
	DefaultAuthRetryDelay = 2 * time.Second

	// DefaultProductName is presented to devices when pairing.
	DefaultProductName = "correre"

	// DefaultFakeWait is the simulated latency of the fake driver.
	DefaultFakeWait = 200 * time.Millisecond
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Drivers.
const (
	DriverFake = "fake"
)

// AuthRetryPolicy describes what happens to queued work after an
// authentication failure. With zero Attempts the queued tasks wait for the
// next enqueue; otherwise a new session is started after Delay, at most
// Attempts times in a row.
type AuthRetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// FakeDevice configures the directory-backed fake driver.
type FakeDevice struct {
	BasePath     string
	Wait         time.Duration
	AuthFail     bool
	NoActivities bool
}

// Log configures the logger.
type Log struct {
	Level      string
	Format     string
	OutputPath string
}

// Configuration describes a general configuration.
type Configuration struct {
	// ProfileDir holds the directory that device profiles and downloaded
	// files are stored under.
	ProfileDir string

	// ProductName is presented to a device when pairing with it.
	ProductName string

	// IdleTimeout holds the delay after which a connected session with no
	// queued work disconnects.
	IdleTimeout time.Duration

	// AuthTimeout holds the timeout for pairing authorization requests.
	AuthTimeout time.Duration

	// LinkAttempts and LinkInterval bound the link retries of a session.
	LinkAttempts int
	LinkInterval time.Duration

	// AuthRetry holds the retry policy after an authentication failure.
	AuthRetry AuthRetryPolicy

	// Store selects the device store backend.
	Store string

	// Driver selects the device driver.
	Driver string

	// Fake configures the fake driver.
	Fake FakeDevice

	// Log configures logging.
	Log Log

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string
}

// New returns a new configuration with the default timeouts.
func New() Configuration {
	return Configuration{
		ProfileDir:   defaultProfileDir(),
		ProductName:  DefaultProductName,
		IdleTimeout:  DefaultIdleTimeout,
		AuthTimeout:  DefaultAuthTimeout,
		LinkAttempts: DefaultLinkAttempts,
		LinkInterval: DefaultLinkInterval,
		AuthRetry: AuthRetryPolicy{
			Delay: DefaultAuthRetryDelay,
		},
		Store:  StoreFile,
		Driver: DriverFake,
		Fake: FakeDevice{
			Wait: DefaultFakeWait,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a TOML configuration file on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (Configuration, error) {
	cfg := New()

	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Configuration{}, fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Configuration{}, fmt.Errorf("parse config: %w", err)
	}

	if err := raw.apply(&cfg); err != nil {
		return Configuration{}, err
	}

	return cfg, cfg.Validate()
}

// ApplyEnv overrides the fake driver settings from the environment.
func (c *Configuration) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if getenv("FAKE_GARMIN") != "" {
		c.Driver = DriverFake
	}

	if v := getenv("FAKE_GARMIN_TIME"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FAKE_GARMIN_TIME: %w", err)
		}
		c.Fake.Wait = time.Duration(ms) * time.Millisecond
	}

	if v := getenv("FAKE_GARMIN_BASE_PATH"); v != "" {
		c.Fake.BasePath = v
	}

	if getenv("FAKE_GARMIN_NO_ACTIVITIES") != "" {
		c.Fake.NoActivities = true
	}

	if getenv("FAKE_GARMIN_AUTH_FAIL") != "" {
		c.Fake.AuthFail = true
	}

	return nil
}

// Validate checks the configuration for unusable values.
func (c Configuration) Validate() error {
	switch {
	case c.IdleTimeout <= 0:
		return errors.New("idle timeout must be positive")
	case c.AuthTimeout <= 0:
		return errors.New("auth timeout must be positive")
	case c.LinkAttempts < 1:
		return errors.New("link attempts must be at least 1")
	case c.AuthRetry.Attempts < 0:
		return errors.New("auth retry attempts must not be negative")
	}

	switch c.Store {
	case StoreFile, StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}

	if c.Driver != DriverFake {
		return fmt.Errorf("unknown driver %q", c.Driver)
	}

	return nil
}

// FakeBasePath returns the directory the fake driver serves files from.
func (c Configuration) FakeBasePath() string {
	if c.Fake.BasePath != "" {
		return c.Fake.BasePath
	}

	return filepath.Join(userDataDir(), "fuga", "3868484997")
}

type fileConfig struct {
	ProfileDir  string `toml:"profile_dir"`
	ProductName string `toml:"product_name"`
	Store       string `toml:"store"`
	Driver      string `toml:"driver"`
	MetricsAddr string `toml:"metrics_addr"`

	Session struct {
		IdleTimeout    string `toml:"idle_timeout"`
		AuthTimeout    string `toml:"auth_timeout"`
		LinkAttempts   int    `toml:"link_attempts"`
		LinkInterval   string `toml:"link_interval"`
		AuthRetries    int    `toml:"auth_retries"`
		AuthRetryDelay string `toml:"auth_retry_delay"`
	} `toml:"session"`

	Fake struct {
		BasePath     string `toml:"base_path"`
		Wait         string `toml:"wait"`
		AuthFail     bool   `toml:"auth_fail"`
		NoActivities bool   `toml:"no_activities"`
	} `toml:"fake"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		Output string `toml:"output"`
	} `toml:"log"`
}

func (f fileConfig) apply(cfg *Configuration) error {
	setString(&cfg.ProfileDir, f.ProfileDir)
	setString(&cfg.ProductName, f.ProductName)
	setString(&cfg.Store, f.Store)
	setString(&cfg.Driver, f.Driver)
	setString(&cfg.MetricsAddr, f.MetricsAddr)
	setString(&cfg.Fake.BasePath, f.Fake.BasePath)
	setString(&cfg.Log.Level, f.Log.Level)
	setString(&cfg.Log.Format, f.Log.Format)
	setString(&cfg.Log.OutputPath, f.Log.Output)

	cfg.ProfileDir = expandHome(cfg.ProfileDir)
	cfg.Fake.BasePath = expandHome(cfg.Fake.BasePath)
	cfg.Fake.AuthFail = f.Fake.AuthFail
	cfg.Fake.NoActivities = f.Fake.NoActivities

	if f.Session.LinkAttempts != 0 {
		cfg.LinkAttempts = f.Session.LinkAttempts
	}
	if f.Session.AuthRetries != 0 {
		cfg.AuthRetry.Attempts = f.Session.AuthRetries
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"session.idle_timeout", f.Session.IdleTimeout, &cfg.IdleTimeout},
		{"session.auth_timeout", f.Session.AuthTimeout, &cfg.AuthTimeout},
		{"session.link_interval", f.Session.LinkInterval, &cfg.LinkInterval},
		{"session.auth_retry_delay", f.Session.AuthRetryDelay, &cfg.AuthRetry.Delay},
		{"fake.wait", f.Fake.Wait, &cfg.Fake.Wait},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.value) == "" {
			continue
		}

		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}

func defaultProfileDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}

	return filepath.Join(dir, DefaultProductName)
}

func userDataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}

	return filepath.Join(home, ".local", "share")
}
