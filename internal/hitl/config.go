package hitl

import (
	"fmt"
	"os"
	"time"
)

// Config holds review gate settings.
type Config struct {
	// Window is how long a ticket stays open before expiring.
	Window string `toml:"window"`
	// PollInterval is the dispatcher cadence for expiry and delivery.
	PollInterval string `toml:"poll_interval"`
}

// Env maps environment variable names for review gate configuration.
type Env struct {
	Window       string
	PollInterval string
}

// WindowDuration returns Window as a time.Duration.
func (c *Config) WindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.Window)
	return d
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c *Config) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Window != "" {
		c.Window = overlay.Window
	}
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
}

func (c *Config) loadDefaults() {
	if c.Window == "" {
		c.Window = "168h"
	}
	if c.PollInterval == "" {
		c.PollInterval = "10s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Window != "" {
		if v := os.Getenv(env.Window); v != "" {
			c.Window = v
		}
	}
	if env.PollInterval != "" {
		if v := os.Getenv(env.PollInterval); v != "" {
			c.PollInterval = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Window); err != nil {
		return fmt.Errorf("invalid window: %w", err)
	}
	if _, err := time.ParseDuration(c.PollInterval); err != nil {
		return fmt.Errorf("invalid poll_interval: %w", err)
	}
	return nil
}
