package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Dashboard DashboardConfig   `yaml:"dashboard"`
	Imports   ImportsConfig     `yaml:"imports"`
	SSE       SSEConfig         `yaml:"sse"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Dashboard.Validate(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	if err := c.Imports.Validate(); err != nil {
		return fmt.Errorf("imports: %w", err)
	}
	return c.SSE.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// DashboardConfig configures the board command.
//
// APIURL points at a running server's base URL; when empty the board reads the
// local SQLite database directly.
type DashboardConfig struct {
	RangeDays int    `yaml:"range_days"`
	APIURL    string `yaml:"api_url"`
}

// Validate validates the dashboard configuration.
func (c *DashboardConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RangeDays, validation.Required, validation.Min(1), validation.Max(366)),
		validation.Field(&c.APIURL, validation.By(httpURL)),
	)
}

func httpURL(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

// ImportsConfig holds the database inbox and the pre-import backup area.
// An empty Inbox disables the watcher.
type ImportsConfig struct {
	Inbox       string `yaml:"inbox"`
	Backups     string `yaml:"backups"`
	KeepBackups int    `yaml:"keep_backups"`
}

// Validate validates the imports configuration.
func (c *ImportsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backups, validation.Required),
		validation.Field(&c.KeepBackups, validation.Min(0)),
	)
}

// SSEConfig holds event stream settings.
type SSEConfig struct {
	Throttle time.Duration `yaml:"throttle"`
}

// Validate validates the SSE configuration.
func (c *SSEConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Throttle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./loopgrid.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Dashboard: DashboardConfig{
			RangeDays: 10,
		},
		Imports: ImportsConfig{
			Backups:     "./backups",
			KeepBackups: 5,
		},
		SSE: SSEConfig{
			Throttle: 2 * time.Second,
		},
	}
}
