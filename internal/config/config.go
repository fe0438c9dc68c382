package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ICSConfig describes one calendar feed that is imported periodically.
type ICSConfig struct {
	// URL is the feed endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is used for logging and as the fetch cache identity.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// CalendarID is the store calendar events are imported into. Empty
	// means the main calendar.
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
}

// WorkHoursConfig bounds slot search by local hour of day, [Start, End).
type WorkHoursConfig struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// AuthConfig enables bearer token checks on the API.
type AuthConfig struct {
	// JWTSecret is the HS256 key shared with the identity provider. Empty
	// disables authentication.
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret"`
}

// MirrorConfig enables the hosted document mirror.
type MirrorConfig struct {
	// DSN is a lib/pq connection string. Empty disables the mirror.
	DSN string `yaml:"dsn" json:"dsn"`
	// UserID is the document tree owner, users/{UserID}/...
	UserID string `yaml:"user_id" json:"user_id"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone work hours and demo data are evaluated in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir holds the snapshot file and the ICS fetch cache.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// SnapshotKey names the snapshot file, <DataDir>/<SnapshotKey>.json.
	SnapshotKey string `yaml:"snapshot_key" json:"snapshot_key"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// WorkHours is the default used when a reschedule request has none.
	WorkHours WorkHoursConfig `yaml:"work_hours" json:"work_hours"`

	// CORSOrigins lists allowed browser origins for the API.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// RefreshCron is the cron schedule for re-importing ICS feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far ahead recurring feed events are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	ICS    []ICSConfig  `yaml:"ics" json:"ics"`
	Auth   AuthConfig   `yaml:"auth" json:"auth"`
	Mirror MirrorConfig `yaml:"mirror" json:"mirror"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Local",
		DataDir:     "./var",
		SnapshotKey: "lifehub-data",
		LogLevel:    "info",
		WorkHours:   WorkHoursConfig{Start: 8, End: 18},
		CORSOrigins: []string{"*"},
		RefreshCron: "*/15 * * * *",
		HorizonDays: 30,
		ICS:         []ICSConfig{},
	}
}

// Normalize fills missing or invalid values with defaults so partially
// written files still load.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.SnapshotKey == "" {
		c.SnapshotKey = d.SnapshotKey
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	wh := c.WorkHours
	if wh.Start < 0 || wh.Start > 23 || wh.End < 0 || wh.End > 23 || (wh.Start == 0 && wh.End == 0) {
		c.WorkHours = d.WorkHours
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = d.CORSOrigins
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			if c.ICS[i].Name != "" {
				c.ICS[i].ID = c.ICS[i].Name
			} else {
				c.ICS[i].ID = c.ICS[i].URL
			}
		}
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CacheDir is where fetched ICS feeds are cached.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "ics-cache")
}

// Load reads the YAML config at path. On first run the file doesn't exist
// yet; a default one is written (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Still hand back the defaults; the caller decides.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".lifehub-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
