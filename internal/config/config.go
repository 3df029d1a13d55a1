// Package config loads the root service configuration from TOML with an
// environment overlay, then finalizes every section with defaults,
// environment overrides, and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/aegisproof/aegis/internal/cache"
	"github.com/aegisproof/aegis/internal/consensus"
	"github.com/aegisproof/aegis/internal/evidence"
	"github.com/aegisproof/aegis/internal/gateway"
	"github.com/aegisproof/aegis/internal/hitl"
	"github.com/aegisproof/aegis/internal/metering"
	"github.com/aegisproof/aegis/internal/pipeline"
	"github.com/aegisproof/aegis/internal/vector"
	"github.com/aegisproof/aegis/pkg/database"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvAegisEnv             = "AEGIS_ENV"
	EnvAegisShutdownTimeout = "AEGIS_SHUTDOWN_TIMEOUT"
	EnvAegisVersion         = "AEGIS_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "AEGIS_DB_HOST",
	Port:            "AEGIS_DB_PORT",
	Name:            "AEGIS_DB_NAME",
	User:            "AEGIS_DB_USER",
	Password:        "AEGIS_DB_PASSWORD",
	SSLMode:         "AEGIS_DB_SSL_MODE",
	MaxOpenConns:    "AEGIS_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "AEGIS_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "AEGIS_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "AEGIS_DB_CONN_TIMEOUT",
}

var cacheEnv = &cache.Env{
	Addr:     "AEGIS_CACHE_ADDR",
	Password: "AEGIS_CACHE_PASSWORD",
	DB:       "AEGIS_CACHE_DB",
	TTL:      "AEGIS_CACHE_TTL",
}

var vectorEnv = &vector.Env{
	Host:   "AEGIS_VECTOR_HOST",
	Scheme: "AEGIS_VECTOR_SCHEME",
}

var gatewayEnv = &gateway.Env{
	BaseURL:     "AEGIS_GATEWAY_BASE_URL",
	APIKey:      "AEGIS_GATEWAY_API_KEY",
	Verifiers:   "AEGIS_GATEWAY_VERIFIERS",
	EmbedModel:  "AEGIS_GATEWAY_EMBED_MODEL",
	CallTimeout: "AEGIS_GATEWAY_CALL_TIMEOUT",
}

var evidenceEnv = &evidence.Env{
	ContainerName:    "AEGIS_EVIDENCE_CONTAINER_NAME",
	ConnectionString: "AEGIS_EVIDENCE_CONNECTION_STRING",
	MaxListSize:      "AEGIS_EVIDENCE_MAX_LIST_SIZE",
}

var consensusEnv = &consensus.Env{
	SigmaVar: "AEGIS_CONSENSUS_SIGMA_VAR",
	MinVotes: "AEGIS_CONSENSUS_MIN_VOTES",
}

var pipelineEnv = &pipeline.Env{
	Version:           "AEGIS_PIPELINE_VERSION",
	VerifyConcurrency: "AEGIS_PIPELINE_VERIFY_CONCURRENCY",
	TopK:              "AEGIS_PIPELINE_TOP_K",
	ReviewDomains:     "AEGIS_PIPELINE_REVIEW_DOMAINS",
}

var hitlEnv = &hitl.Env{
	Window:       "AEGIS_HITL_WINDOW",
	PollInterval: "AEGIS_HITL_POLL_INTERVAL",
}

var meteringEnv = &metering.Env{
	FreeDailyQuota: "AEGIS_METERING_FREE_DAILY_QUOTA",
	ProDailyQuota:  "AEGIS_METERING_PRO_DAILY_QUOTA",
}

// Config is the root configuration for the Aegis service.
type Config struct {
	Server          ServerConfig     `toml:"server"`
	Database        database.Config  `toml:"database"`
	Cache           cache.Config     `toml:"cache"`
	Vector          vector.Config    `toml:"vector"`
	Gateway         gateway.Config   `toml:"gateway"`
	Evidence        evidence.Config  `toml:"evidence"`
	Consensus       consensus.Config `toml:"consensus"`
	Pipeline        pipeline.Config  `toml:"pipeline"`
	HITL            hitl.Config      `toml:"hitl"`
	Metering        metering.Config  `toml:"metering"`
	API             APIConfig        `toml:"api"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Version         string           `toml:"version"`
}

// Env returns the AEGIS_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvAegisEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Cache.Merge(&overlay.Cache)
	c.Vector.Merge(&overlay.Vector)
	c.Gateway.Merge(&overlay.Gateway)
	c.Evidence.Merge(&overlay.Evidence)
	c.Consensus.Merge(&overlay.Consensus)
	c.Pipeline.Merge(&overlay.Pipeline)
	c.HITL.Merge(&overlay.HITL)
	c.Metering.Merge(&overlay.Metering)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Cache.Finalize(cacheEnv); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Vector.Finalize(vectorEnv); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	if err := c.Gateway.Finalize(gatewayEnv); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	if err := c.Evidence.Finalize(evidenceEnv); err != nil {
		return fmt.Errorf("evidence: %w", err)
	}
	if err := c.Consensus.Finalize(consensusEnv); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}
	if err := c.Pipeline.Finalize(pipelineEnv); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.HITL.Finalize(hitlEnv); err != nil {
		return fmt.Errorf("hitl: %w", err)
	}
	if err := c.Metering.Finalize(meteringEnv); err != nil {
		return fmt.Errorf("metering: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvAegisShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvAegisVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvAegisEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
