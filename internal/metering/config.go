package metering

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds quota and pricing settings.
type Config struct {
	// FreeDailyQuota is the daily claim limit for free keys; exceeding
	// it yields quota-exceeded.
	FreeDailyQuota int `toml:"free_daily_quota"`
	// ProDailyQuota is the included daily volume for pro keys; exceeding
	// it yields payment-required with the overage price.
	ProDailyQuota int `toml:"pro_daily_quota"`
	// OveragePrice and OverageCurrency describe the per-claim price
	// surfaced on 402 responses.
	OveragePrice    string `toml:"overage_price"`
	OverageCurrency string `toml:"overage_currency"`
}

// Env maps environment variable names for metering configuration.
type Env struct {
	FreeDailyQuota string
	ProDailyQuota  string
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
	if overlay.FreeDailyQuota != 0 {
		c.FreeDailyQuota = overlay.FreeDailyQuota
	}
	if overlay.ProDailyQuota != 0 {
		c.ProDailyQuota = overlay.ProDailyQuota
	}
	if overlay.OveragePrice != "" {
		c.OveragePrice = overlay.OveragePrice
	}
	if overlay.OverageCurrency != "" {
		c.OverageCurrency = overlay.OverageCurrency
	}
}

func (c *Config) loadDefaults() {
	if c.FreeDailyQuota == 0 {
		c.FreeDailyQuota = 50
	}
	if c.ProDailyQuota == 0 {
		c.ProDailyQuota = 1000
	}
	if c.OveragePrice == "" {
		c.OveragePrice = "0.01"
	}
	if c.OverageCurrency == "" {
		c.OverageCurrency = "USD"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.FreeDailyQuota != "" {
		if v := os.Getenv(env.FreeDailyQuota); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.FreeDailyQuota = n
			}
		}
	}
	if env.ProDailyQuota != "" {
		if v := os.Getenv(env.ProDailyQuota); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.ProDailyQuota = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.FreeDailyQuota < 0 || c.ProDailyQuota < 0 {
		return fmt.Errorf("quotas must be >= 0")
	}
	return nil
}
