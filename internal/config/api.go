package config

import (
	"fmt"
	"os"

	"github.com/aegisproof/aegis/pkg/middleware"
	"github.com/aegisproof/aegis/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "AEGIS_CORS_ENABLED",
	Origins:          "AEGIS_CORS_ORIGINS",
	AllowedMethods:   "AEGIS_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "AEGIS_CORS_ALLOWED_HEADERS",
	AllowCredentials: "AEGIS_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "AEGIS_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "AEGIS_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "AEGIS_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig holds API routing, CORS, pagination, and reviewer auth settings.
type APIConfig struct {
	BasePath   string                `toml:"base_path"`
	CORS       middleware.CORSConfig `toml:"cors"`
	Pagination pagination.Config     `toml:"pagination"`
	OIDC       OIDCConfig            `toml:"oidc"`
}

// OIDCConfig enables bearer-token authentication for reviewers. When
// Issuer is empty, bearer tokens fall back to API key lookup.
type OIDCConfig struct {
	Issuer   string `toml:"issuer"`
	ClientID string `toml:"client_id"`
}

func (c *OIDCConfig) merge(overlay *OIDCConfig) {
	if overlay.Issuer != "" {
		c.Issuer = overlay.Issuer
	}
	if overlay.ClientID != "" {
		c.ClientID = overlay.ClientID
	}
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.OIDC.merge(&overlay.OIDC)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/v1"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("AEGIS_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("AEGIS_OIDC_ISSUER"); v != "" {
		c.OIDC.Issuer = v
	}
	if v := os.Getenv("AEGIS_OIDC_CLIENT_ID"); v != "" {
		c.OIDC.ClientID = v
	}
}
