package vector

import (
	"fmt"
	"os"
)

// Config holds Weaviate connection settings.
type Config struct {
	Host   string `toml:"host"`
	Scheme string `toml:"scheme"`
}

// Env maps environment variable names for vector index configuration.
type Env struct {
	Host   string
	Scheme string
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
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Scheme != "" {
		c.Scheme = overlay.Scheme
	}
}

func (c *Config) loadDefaults() {
	if c.Host == "" {
		c.Host = "localhost:8081"
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := os.Getenv(env.Host); v != "" {
		c.Host = v
	}
	if v := os.Getenv(env.Scheme); v != "" {
		c.Scheme = v
	}
}

func (c *Config) validate() error {
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("invalid scheme: %q", c.Scheme)
	}
	return nil
}
