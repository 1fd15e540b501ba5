// Package config loads the service configuration from YAML and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// NotificationsConfig configures local notification delivery.
type NotificationsConfig struct {
	// ExactAlarms is whether exact scheduling is available at start-up.
	ExactAlarms bool `yaml:"exact_alarms"`
	// Permission is the starting notification permission:
	// "granted", "prompt" (default) or "denied".
	Permission  string `yaml:"permission"`
	TickSeconds int    `yaml:"tick_seconds"`
}

// Config is the top-level configuration.
type Config struct {
	// Listen is the HTTP listen address for the UI API.
	Listen string `yaml:"listen"`

	// StoreURL is the base URL of the remote appointment store.
	StoreURL string `yaml:"store_url"`

	// Timezone is the IANA zone appointment dates and times are read in.
	// "Local" uses the host zone.
	Timezone string `yaml:"timezone"`

	LogLevel string `yaml:"log_level"`

	// DBPath is the SQLite file holding scheduled triggers.
	DBPath string `yaml:"db_path"`

	// Refresh is a cron schedule for re-fetching the collection. Empty turns
	// scheduled refresh off.
	Refresh string `yaml:"refresh"`

	ReminderLeadMinutes int `yaml:"reminder_lead_minutes"`

	Notifications NotificationsConfig `yaml:"notifications"`

	CORSOrigins []string `yaml:"cors_origins"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:              ":8080",
		StoreURL:            "http://localhost:5000",
		Timezone:            "Local",
		LogLevel:            "info",
		DBPath:              "appointments.db",
		Refresh:             "*/15 * * * *",
		ReminderLeadMinutes: 5,
		Notifications: NotificationsConfig{
			ExactAlarms: true,
			Permission:  "prompt",
			TickSeconds: 1,
		},
		CORSOrigins: []string{"*"},
	}
}

// Normalize fills zero values with defaults and folds unknown enum values
// back to their default.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.StoreURL == "" {
		c.StoreURL = d.StoreURL
	}
	c.StoreURL = strings.TrimRight(c.StoreURL, "/")
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.ReminderLeadMinutes <= 0 {
		c.ReminderLeadMinutes = d.ReminderLeadMinutes
	}
	switch c.Notifications.Permission {
	case "granted", "prompt", "denied":
	default:
		c.Notifications.Permission = d.Notifications.Permission
	}
	if c.Notifications.TickSeconds <= 0 {
		c.Notifications.TickSeconds = d.Notifications.TickSeconds
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = d.CORSOrigins
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. A missing file is not an error; an empty path skips
// the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from APPT_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("APPT_LISTEN", &c.Listen)
	str("APPT_STORE_URL", &c.StoreURL)
	str("APPT_TIMEZONE", &c.Timezone)
	str("APPT_LOG_LEVEL", &c.LogLevel)
	str("APPT_DB_PATH", &c.DBPath)
	str("APPT_NOTIFICATION_PERMISSION", &c.Notifications.Permission)

	// An explicitly empty APPT_REFRESH disables scheduled refresh.
	if v, ok := lookup("APPT_REFRESH"); ok {
		c.Refresh = v
	}

	if v, ok := lookup("APPT_REMINDER_LEAD_MINUTES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("APPT_REMINDER_LEAD_MINUTES: %w", err)
		}
		c.ReminderLeadMinutes = n
	}
	if v, ok := lookup("APPT_EXACT_ALARMS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("APPT_EXACT_ALARMS: %w", err)
		}
		c.Notifications.ExactAlarms = b
	}
	if v, ok := lookup("APPT_CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ReminderLead is the reminder lead time as a duration.
func (c *Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadMinutes) * time.Minute
}

// TickInterval is how often due triggers are checked.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Notifications.TickSeconds) * time.Second
}
