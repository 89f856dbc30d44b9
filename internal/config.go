package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/decksmith/internal/media"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Output OutputConfig      `yaml:"output"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// OutputConfig controls where and how archives are extracted.
type OutputConfig struct {
	BaseDir   string     `yaml:"base_dir"`
	MediaMode media.Mode `yaml:"media_mode"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	if c.MediaMode == "" {
		c.MediaMode = media.ModeReferenced
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseDir, validation.Required),
		validation.Field(&c.MediaMode, validation.Required, validation.In(media.ModeReferenced, media.ModeFull)),
	)
}

// InboxConfig holds the watched inbox directory. Archives dropped there are
// extracted into the output base directory.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Output: OutputConfig{
			BaseDir:   "./decks",
			MediaMode: media.ModeReferenced,
		},
		Inbox: InboxConfig{
			Enabled: false,
			Path:    "./inbox",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
