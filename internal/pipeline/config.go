package pipeline

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// StageConfig is the timeout and retry policy for one stage.
type StageConfig struct {
	Timeout string `toml:"timeout"`
	Retries int    `toml:"retries"`
	Delay   string `toml:"delay"`
	Backoff string `toml:"backoff"`
}

func (s StageConfig) policy() Policy {
	delay, _ := time.ParseDuration(s.Delay)
	return Policy{
		Retries:     s.Retries,
		Delay:       delay,
		Exponential: s.Backoff == "exp",
	}
}

func (s StageConfig) timeout() time.Duration {
	d, _ := time.ParseDuration(s.Timeout)
	return d
}

// Config holds pipeline orchestration settings.
type Config struct {
	Version           string      `toml:"version"`
	VerifyConcurrency int64       `toml:"verify_concurrency"`
	TopK              int         `toml:"top_k"`
	SimilarityCut     float64     `toml:"similarity_cut"`
	LowSimilarityFlag float64     `toml:"low_similarity_flag"`
	ReviewDomains     []string    `toml:"review_domains"`
	Sanitize          StageConfig `toml:"sanitize"`
	Embed             StageConfig `toml:"embed"`
	Search            StageConfig `toml:"search"`
	Verify            StageConfig `toml:"verify"`
	Detect            StageConfig `toml:"detect"`
	Sign              StageConfig `toml:"sign"`
}

// Env maps environment variable names for pipeline configuration.
type Env struct {
	Version           string
	VerifyConcurrency string
	TopK              string
	ReviewDomains     string
}

// StageConfig returns the configuration for the named stage.
func (c *Config) StageConfig(s Stage) StageConfig {
	switch s {
	case StageSanitize:
		return c.Sanitize
	case StageEmbed:
		return c.Embed
	case StageSearch:
		return c.Search
	case StageVerify:
		return c.Verify
	case StageDetect:
		return c.Detect
	case StageSign:
		return c.Sign
	}
	return StageConfig{}
}

// ReviewMandated reports whether domain policy requires human review.
func (c *Config) ReviewMandated(domain string) bool {
	return slices.Contains(c.ReviewDomains, domain)
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
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	if overlay.VerifyConcurrency != 0 {
		c.VerifyConcurrency = overlay.VerifyConcurrency
	}
	if overlay.TopK != 0 {
		c.TopK = overlay.TopK
	}
	if overlay.SimilarityCut != 0 {
		c.SimilarityCut = overlay.SimilarityCut
	}
	if overlay.LowSimilarityFlag != 0 {
		c.LowSimilarityFlag = overlay.LowSimilarityFlag
	}
	if len(overlay.ReviewDomains) > 0 {
		c.ReviewDomains = overlay.ReviewDomains
	}
	mergeStage(&c.Sanitize, overlay.Sanitize)
	mergeStage(&c.Embed, overlay.Embed)
	mergeStage(&c.Search, overlay.Search)
	mergeStage(&c.Verify, overlay.Verify)
	mergeStage(&c.Detect, overlay.Detect)
	mergeStage(&c.Sign, overlay.Sign)
}

func mergeStage(dst *StageConfig, overlay StageConfig) {
	if overlay.Timeout != "" {
		dst.Timeout = overlay.Timeout
	}
	if overlay.Retries != 0 {
		dst.Retries = overlay.Retries
	}
	if overlay.Delay != "" {
		dst.Delay = overlay.Delay
	}
	if overlay.Backoff != "" {
		dst.Backoff = overlay.Backoff
	}
}

func (c *Config) loadDefaults() {
	if c.Version == "" {
		c.Version = "1.0.0"
	}
	if c.VerifyConcurrency == 0 {
		c.VerifyConcurrency = 8
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.SimilarityCut == 0 {
		c.SimilarityCut = 0.7
	}
	if c.LowSimilarityFlag == 0 {
		c.LowSimilarityFlag = 0.4
	}

	defaultStage(&c.Sanitize, "30s", 2, "3s", "exp")
	defaultStage(&c.Embed, "60s", 3, "5s", "linear")
	defaultStage(&c.Search, "30s", 2, "3s", "linear")
	defaultStage(&c.Verify, "120s", 3, "10s", "exp")
	defaultStage(&c.Detect, "60s", 2, "5s", "linear")
	defaultStage(&c.Sign, "30s", 2, "5s", "exp")
}

func defaultStage(s *StageConfig, timeout string, retries int, delay, backoff string) {
	if s.Timeout == "" {
		s.Timeout = timeout
	}
	if s.Retries == 0 {
		s.Retries = retries
	}
	if s.Delay == "" {
		s.Delay = delay
	}
	if s.Backoff == "" {
		s.Backoff = backoff
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Version != "" {
		if v := os.Getenv(env.Version); v != "" {
			c.Version = v
		}
	}
	if env.VerifyConcurrency != "" {
		if v := os.Getenv(env.VerifyConcurrency); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				c.VerifyConcurrency = n
			}
		}
	}
	if env.TopK != "" {
		if v := os.Getenv(env.TopK); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.TopK = n
			}
		}
	}
	if env.ReviewDomains != "" {
		if v := os.Getenv(env.ReviewDomains); v != "" {
			c.ReviewDomains = splitList(v)
		}
	}
}

func (c *Config) validate() error {
	for _, s := range stageOrder {
		sc := c.StageConfig(s)
		if _, err := time.ParseDuration(sc.Timeout); err != nil {
			return fmt.Errorf("stage %s: invalid timeout: %w", s, err)
		}
		if _, err := time.ParseDuration(sc.Delay); err != nil {
			return fmt.Errorf("stage %s: invalid delay: %w", s, err)
		}
		if sc.Backoff != "exp" && sc.Backoff != "linear" {
			return fmt.Errorf("stage %s: backoff must be exp or linear", s)
		}
	}
	if c.SimilarityCut < 0 || c.SimilarityCut > 1 {
		return fmt.Errorf("similarity_cut must be in [0, 1]")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
