package gateway

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// VerifierConfig describes one verifier model endpoint.
type VerifierConfig struct {
	Name    string  `toml:"name"`
	BaseURL string  `toml:"base_url"`
	APIKey  string  `toml:"api_key"`
	Model   string  `toml:"model"`
	Weight  float64 `toml:"weight"`
}

// EmbeddingConfig describes the embedding provider.
type EmbeddingConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

// Config holds inference gateway settings.
type Config struct {
	Verifiers   []VerifierConfig `toml:"verifiers"`
	Embedding   EmbeddingConfig  `toml:"embedding"`
	CallTimeout string           `toml:"call_timeout"`
}

// Env maps environment variable names for gateway configuration.
// Verifiers accepts a comma-separated list of name=weight pairs sharing
// the base endpoint; full per-verifier settings come from TOML.
type Env struct {
	BaseURL     string
	APIKey      string
	Verifiers   string
	EmbedModel  string
	CallTimeout string
}

// CallTimeoutDuration returns CallTimeout as a time.Duration.
func (c *Config) CallTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.CallTimeout)
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
	if len(overlay.Verifiers) > 0 {
		c.Verifiers = overlay.Verifiers
	}
	if overlay.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = overlay.Embedding.BaseURL
	}
	if overlay.Embedding.APIKey != "" {
		c.Embedding.APIKey = overlay.Embedding.APIKey
	}
	if overlay.Embedding.Model != "" {
		c.Embedding.Model = overlay.Embedding.Model
	}
	if overlay.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = overlay.Embedding.Dimensions
	}
	if overlay.CallTimeout != "" {
		c.CallTimeout = overlay.CallTimeout
	}
}

func (c *Config) loadDefaults() {
	if c.CallTimeout == "" {
		c.CallTimeout = "30s"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "nomic-embed-text"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 768
	}
	for i := range c.Verifiers {
		if c.Verifiers[i].Weight == 0 {
			c.Verifiers[i].Weight = 1.0
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := os.Getenv(env.BaseURL); v != "" {
		for i := range c.Verifiers {
			if c.Verifiers[i].BaseURL == "" {
				c.Verifiers[i].BaseURL = v
			}
		}
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = v
		}
	}
	if v := os.Getenv(env.APIKey); v != "" {
		for i := range c.Verifiers {
			if c.Verifiers[i].APIKey == "" {
				c.Verifiers[i].APIKey = v
			}
		}
		if c.Embedding.APIKey == "" {
			c.Embedding.APIKey = v
		}
	}
	if v := os.Getenv(env.Verifiers); v != "" {
		c.Verifiers = parseVerifierList(v)
	}
	if v := os.Getenv(env.EmbedModel); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv(env.CallTimeout); v != "" {
		c.CallTimeout = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.CallTimeout); err != nil {
		return fmt.Errorf("invalid call_timeout: %w", err)
	}
	seen := make(map[string]bool, len(c.Verifiers))
	for _, vc := range c.Verifiers {
		if vc.Name == "" {
			return fmt.Errorf("verifier name required")
		}
		if seen[vc.Name] {
			return fmt.Errorf("duplicate verifier name: %s", vc.Name)
		}
		seen[vc.Name] = true
		if vc.Model == "" {
			return fmt.Errorf("verifier %s: model required", vc.Name)
		}
		if vc.Weight <= 0 {
			return fmt.Errorf("verifier %s: weight must be > 0", vc.Name)
		}
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be > 0")
	}
	return nil
}

// parseVerifierList parses "name=model[:weight],..." into verifier configs.
func parseVerifierList(s string) []VerifierConfig {
	var out []VerifierConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, rest, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}

		vc := VerifierConfig{Name: name, Weight: 1.0}
		model, weight, ok := strings.Cut(rest, ":")
		vc.Model = model
		if ok {
			fmt.Sscanf(weight, "%f", &vc.Weight)
		}
		out = append(out, vc)
	}
	return out
}
