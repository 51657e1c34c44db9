package internal

import (
	"fmt"
	"log/slog"
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
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Search SearchConfig      `yaml:"search"`
	Watch  WatchConfig       `yaml:"watch"`
	Events EventsConfig      `yaml:"events"`
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
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	return c.Events.Validate()
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// SearchConfig tunes the query engine and autocomplete.
type SearchConfig struct {
	MaxCandidates      int           `yaml:"max_candidates"`
	AutocompleteLimit  int           `yaml:"autocomplete_limit"`
	HistoryLimit       int           `yaml:"history_limit"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold"`
	MaxAncestorDepth   int           `yaml:"max_ancestor_depth"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxCandidates, validation.Required, validation.Min(1)),
		validation.Field(&c.AutocompleteLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.HistoryLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.SlowQueryThreshold, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxAncestorDepth, validation.Required, validation.Min(1)),
	)
}

// WatchConfig controls reloading the cache when another process writes
// the database.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.When(c.Enabled, validation.Required, validation.Min(10*time.Millisecond))),
	)
}

// EventsConfig controls the SSE change stream.
type EventsConfig struct {
	TreeThrottle time.Duration `yaml:"tree_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TreeThrottle, validation.Min(time.Duration(0))),
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
			Path: "./arbor.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Search: SearchConfig{
			MaxCandidates:      200,
			AutocompleteLimit:  200,
			HistoryLimit:       50,
			SlowQueryThreshold: 100 * time.Millisecond,
			MaxAncestorDepth:   100,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 200 * time.Millisecond,
		},
		Events: EventsConfig{
			TreeThrottle: 2 * time.Second,
		},
	}
}
