// Package config loads inbleach settings from defaults, an optional YAML
// file, INBLEACH_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. INBLEACH_SERVER_ADDR
const EnvPrefix = "INBLEACH"

// Render formats of GET /messages/:id
const (
	RenderRaw  = "raw"
	RenderHTML = "html"
)

// Config is the complete inbleach configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Google      GoogleConfig      `mapstructure:"google"`
	Messages    MessagesConfig    `mapstructure:"messages"`
	Unsubscribe UnsubscribeConfig `mapstructure:"unsubscribe"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// BaseURL is the externally visible URL of the API; the OAuth redirect
	// URL is derived from it.
	BaseURL string `mapstructure:"base_url"`
	// FrontendURL receives the browser after a successful OAuth callback
	FrontendURL   string `mapstructure:"frontend_url"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
}

// GoogleConfig configures OAuth and credential storage
type GoogleConfig struct {
	CredentialsFile string   `mapstructure:"credentials_file"`
	Scopes          []string `mapstructure:"scopes"`
	TokenStore      string   `mapstructure:"token_store"`
	TokenFile       string   `mapstructure:"token_file"`
}

// MessagesConfig configures message listing and rendering
type MessagesConfig struct {
	DefaultDays int    `mapstructure:"default_days"`
	Render      string `mapstructure:"render"`
}

// UnsubscribeConfig configures the unsubscribe resolver
type UnsubscribeConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	RequirePromotional bool          `mapstructure:"require_promotional"`
	PromotionalLabel   string        `mapstructure:"promotional_label"`
}

// MetricsConfig configures the dedicated metrics listener
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OAuthRedirectURL is where Google sends the browser back to
func (c *Config) OAuthRedirectURL() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + "/auth/callback/google"
}

// Validate checks values that would otherwise fail late at request time
func (c *Config) Validate() error {
	var errs []error

	if c.Messages.DefaultDays < 1 {
		errs = append(errs, fmt.Errorf("messages.default_days must be at least 1, got %d", c.Messages.DefaultDays))
	}
	if c.Messages.Render != RenderRaw && c.Messages.Render != RenderHTML {
		errs = append(errs, fmt.Errorf("messages.render must be raw or html, got %q", c.Messages.Render))
	}
	if c.Unsubscribe.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("unsubscribe.timeout must be positive, got %s", c.Unsubscribe.Timeout))
	}
	for key, raw := range map[string]string{
		"server.base_url":     c.Server.BaseURL,
		"server.frontend_url": c.Server.FrontendURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", key, raw))
		}
	}

	return errors.Join(errs...)
}

// SetDefaults registers the default of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.frontend_url", "http://localhost:3000/")
	v.SetDefault("server.secure_cookies", false)

	v.SetDefault("google.credentials_file", filepath.Join("creds", "credentials.json"))
	v.SetDefault("google.scopes", []string{"https://www.googleapis.com/auth/gmail.modify"})
	v.SetDefault("google.token_store", "file")
	v.SetDefault("google.token_file", "")

	v.SetDefault("messages.default_days", 1)
	v.SetDefault("messages.render", RenderRaw)

	v.SetDefault("unsubscribe.timeout", 10*time.Second)
	v.SetDefault("unsubscribe.user_agent", "")
	v.SetDefault("unsubscribe.require_promotional", true)
	v.SetDefault("unsubscribe.promotional_label", "CATEGORY_PROMOTIONS")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding set up
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads the config file at path, or searches for inbleach.yaml in
// the working directory and $HOME/.config/inbleach when path is empty. A
// missing file is not an error when searching. It returns the file used.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("inbleach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "inbleach"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes and validates the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
