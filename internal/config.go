package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/timethings/internal/metasync"
	"github.com/starford/timethings/internal/timefmt"
	"github.com/starford/timethings/internal/tracker"
	pkgconfig "github.com/starford/timethings/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// StructuredMinTimeout is the smallest debounce interval allowed with the
// structured header backend, which rewrites the whole file on every flush.
const StructuredMinTimeout = 10 * time.Second

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Tracking TrackingConfig    `yaml:"tracking"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Tracking.Validate()
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds the edit statistics database configuration.
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
//   - "disabled" (default): no authentication required, suitable for local use.
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

// TrackingConfig controls session tracking and the managed header fields.
type TrackingConfig struct {
	// UseFastBackend edits header lines in place instead of re-encoding the
	// whole header through the YAML backend.
	UseFastBackend bool `yaml:"use_fast_backend"`
	// TypingTimeout is the idle time that ends an editing session.
	TypingTimeout time.Duration `yaml:"typing_timeout"`
	// FlushTimeout is the idle time before header fields are written. Zero
	// means the same as TypingTimeout.
	FlushTimeout time.Duration     `yaml:"flush_timeout"`
	UTC          bool              `yaml:"utc"`
	ModifiedKey  ModifiedKeyConfig `yaml:"modified_key"`
	DurationKey  HeaderKeyConfig   `yaml:"duration_key"`
	Indicator    IndicatorConfig   `yaml:"indicator"`
}

// HeaderKeyConfig configures one managed header field.
type HeaderKeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Format  string `yaml:"format"`
}

// ModifiedKeyConfig is the modified timestamp field plus the active editing
// time a session needs before the field is touched.
type ModifiedKeyConfig struct {
	HeaderKeyConfig `yaml:",inline"`
	Threshold       time.Duration `yaml:"threshold"`
}

// IndicatorConfig holds the glyphs reported for the typing indicator.
type IndicatorConfig struct {
	Active   string `yaml:"active"`
	Inactive string `yaml:"inactive"`
}

var durationPattern = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	return timefmt.ValidateDurationPattern(s)
})

// Validate validates the tracking configuration and applies the structured
// backend's minimum timeout.
func (c *TrackingConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TypingTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.FlushTimeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.ModifiedKey,
		validation.Field(&c.ModifiedKey.Name, validation.When(c.ModifiedKey.Enabled, validation.Required)),
		validation.Field(&c.ModifiedKey.Format, validation.When(c.ModifiedKey.Enabled, validation.Required)),
		validation.Field(&c.ModifiedKey.Threshold, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("modified_key: %w", err)
	}
	if err := validation.ValidateStruct(&c.DurationKey,
		validation.Field(&c.DurationKey.Name, validation.When(c.DurationKey.Enabled, validation.Required)),
		validation.Field(&c.DurationKey.Format, validation.When(c.DurationKey.Enabled, validation.Required, durationPattern)),
	); err != nil {
		return fmt.Errorf("duration_key: %w", err)
	}
	if c.ModifiedKey.Enabled && c.DurationKey.Enabled && c.ModifiedKey.Name == c.DurationKey.Name {
		return errors.New("tracking: modified_key and duration_key share the name " + c.ModifiedKey.Name)
	}

	if !c.UseFastBackend {
		if c.TypingTimeout < StructuredMinTimeout {
			c.TypingTimeout = StructuredMinTimeout
		}
		if c.FlushTimeout != 0 && c.FlushTimeout < StructuredMinTimeout {
			c.FlushTimeout = StructuredMinTimeout
		}
	}
	return nil
}

// Timing returns the tracker debounce intervals.
func (c *TrackingConfig) Timing() tracker.Timing {
	flush := c.FlushTimeout
	if flush == 0 {
		flush = c.TypingTimeout
	}
	return tracker.Timing{Typing: c.TypingTimeout, Flush: flush}
}

// SyncSettings returns the header field policy.
func (c *TrackingConfig) SyncSettings() metasync.Settings {
	return metasync.Settings{
		Modified: metasync.KeySettings{
			Enabled: c.ModifiedKey.Enabled,
			Name:    c.ModifiedKey.Name,
			Format:  c.ModifiedKey.Format,
		},
		ModifiedThreshold: c.ModifiedKey.Threshold,
		Duration: metasync.KeySettings{
			Enabled: c.DurationKey.Enabled,
			Name:    c.DurationKey.Name,
			Format:  c.DurationKey.Format,
		},
		UTC: c.UTC,
	}
}

// LoadConfigFile reads and validates the configuration at path on top of the
// defaults.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
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
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./timethings.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Tracking: TrackingConfig{
			TypingTimeout: 3 * time.Second,
			ModifiedKey: ModifiedKeyConfig{
				HeaderKeyConfig: HeaderKeyConfig{
					Enabled: true,
					Name:    "updated_at",
					Format:  "YYYY-MM-DD[T]HH:mm:ss.SSSZ",
				},
				Threshold: 4 * time.Second,
			},
			DurationKey: HeaderKeyConfig{
				Enabled: true,
				Name:    "edited_seconds",
				Format:  "HH:mm:ss",
			},
			Indicator: IndicatorConfig{
				Active:   "✏🔵",
				Inactive: "✋🔴",
			},
		},
	}
}
