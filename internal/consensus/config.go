package consensus

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds consensus engine thresholds.
type Config struct {
	// SigmaVar is the variance halt threshold on confidence stddev.
	SigmaVar float64 `toml:"sigma_var"`
	// MinVotes is the minimum valid votes for quorum.
	MinVotes int `toml:"min_votes"`
	// Thresholds maps domains to constitutional halt thresholds.
	Thresholds map[string]float64 `toml:"thresholds"`
	// DefaultThreshold applies to domains absent from Thresholds.
	DefaultThreshold float64 `toml:"default_threshold"`
}

// Env maps environment variable names for consensus configuration.
type Env struct {
	SigmaVar string
	MinVotes string
}

// Params converts the config to engine parameters.
func (c *Config) Params() Params {
	return Params{
		SigmaVar:         c.SigmaVar,
		MinVotes:         c.MinVotes,
		Thresholds:       c.Thresholds,
		DefaultThreshold: c.DefaultThreshold,
	}
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
	if overlay.SigmaVar != 0 {
		c.SigmaVar = overlay.SigmaVar
	}
	if overlay.MinVotes != 0 {
		c.MinVotes = overlay.MinVotes
	}
	if len(overlay.Thresholds) > 0 {
		c.Thresholds = overlay.Thresholds
	}
	if overlay.DefaultThreshold != 0 {
		c.DefaultThreshold = overlay.DefaultThreshold
	}
}

func (c *Config) loadDefaults() {
	if c.SigmaVar == 0 {
		c.SigmaVar = 0.25
	}
	if c.MinVotes == 0 {
		c.MinVotes = 3
	}
	if c.Thresholds == nil {
		c.Thresholds = map[string]float64{
			"vetproof":  0.67,
			"legal":     0.70,
			"finance":   0.75,
			"health":    0.80,
			"education": 0.65,
			"aviation":  0.85,
		}
	}
	if c.DefaultThreshold == 0 {
		c.DefaultThreshold = 0.70
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.SigmaVar != "" {
		if v := os.Getenv(env.SigmaVar); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				c.SigmaVar = f
			}
		}
	}
	if env.MinVotes != "" {
		if v := os.Getenv(env.MinVotes); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.MinVotes = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.SigmaVar <= 0 || c.SigmaVar >= 1 {
		return fmt.Errorf("sigma_var must be in (0, 1)")
	}
	if c.MinVotes < 1 {
		return fmt.Errorf("min_votes must be >= 1")
	}
	for domain, t := range c.Thresholds {
		if t <= 0 || t >= 1 {
			return fmt.Errorf("threshold for %s must be in (0, 1)", domain)
		}
	}
	if c.DefaultThreshold <= 0 || c.DefaultThreshold >= 1 {
		return fmt.Errorf("default_threshold must be in (0, 1)")
	}
	return nil
}
