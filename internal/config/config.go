package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when --config is not provided.
const DefaultConfigPath = "config.yml"

// Load reads and validates the YAML config file.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &AppConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.DSN == "" {
		return nil, fmt.Errorf("config: dsn is required")
	}
	if cfg.SiteURL != "" {
		if _, err := url.Parse(cfg.SiteURL); err != nil {
			return nil, fmt.Errorf("config: invalid site_url: %w", err)
		}
	}
	return cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 2333
	}
	if c.Env == "" {
		c.Env = "production"
	}
	if c.RedisURL == "" {
		c.RedisURL = "redis://localhost:6379/0"
	}
	if c.MediaDir == "" {
		c.MediaDir = "./media"
	}
	if c.Webmention.TimeoutSeconds <= 0 {
		c.Webmention.TimeoutSeconds = 10
	}
	c.SiteURL = strings.TrimRight(strings.TrimSpace(c.SiteURL), "/")
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

// FetchTimeout returns the bounded timeout for remote HTTP operations.
func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.Webmention.TimeoutSeconds) * time.Second
}

// SiteHost returns the host of SiteURL, or "" if unset.
func (c *AppConfig) SiteHost() string {
	u, err := url.Parse(c.SiteURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// IsLocalHost reports whether the given host belongs to this site.
func (c *AppConfig) IsLocalHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	if strings.EqualFold(host, c.SiteHost()) {
		return true
	}
	for _, d := range c.LocalDomains {
		if strings.EqualFold(host, strings.TrimSpace(d)) {
			return true
		}
	}
	return false
}

// EntryURL builds the public permalink for an entry id.
func (c *AppConfig) EntryURL(entryID string) string {
	return c.SiteURL + "/entries/" + entryID
}
