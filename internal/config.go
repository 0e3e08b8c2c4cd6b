package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultRunPath is appended to the LLM base URL when no run_url is configured.
const DefaultRunPath = "/api/flow/run"

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Backend BackendConfig     `yaml:"backend"`
	Flows   FlowsConfig       `yaml:"flows"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate checks every section and names the first one that fails.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"backend", &c.Backend},
		{"flows", &c.Flows},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
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

// BackendConfig locates the remote services.
//
// BaseURL serves the user and project database endpoints. LLMURL serves the
// chat endpoints and defaults to BaseURL. RunURL is the full flow run
// endpoint and defaults to LLMURL + DefaultRunPath. Timeout bounds every
// request; zero leaves the transport default.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	LLMURL  string        `yaml:"llm_url"`
	RunURL  string        `yaml:"run_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the backend configuration.
func (c *BackendConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.LLMURL, validation.By(httpURL)),
		validation.Field(&c.RunURL, validation.By(httpURL)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// RefreshURL is the session refresh endpoint.
func (c *BackendConfig) RefreshURL() string {
	return trimSlash(c.BaseURL) + "/user/refresh"
}

// LLMBase returns the chat service root.
func (c *BackendConfig) LLMBase() string {
	if c.LLMURL != "" {
		return trimSlash(c.LLMURL)
	}
	return trimSlash(c.BaseURL)
}

// RunEndpoint returns the URL flow payloads are posted to.
func (c *BackendConfig) RunEndpoint() string {
	if c.RunURL != "" {
		return c.RunURL
	}
	return c.LLMBase() + DefaultRunPath
}

func trimSlash(s string) string { return strings.TrimRight(s, "/") }

// httpURL accepts empty strings; Required handles presence.
func httpURL(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return errors.New("must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must use http or https")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}

// FlowsConfig holds the path to the directory saved flows live in.
type FlowsConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the flows configuration.
func (c *FlowsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
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

// AuthConfig holds authentication configuration for the local server.
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
		return fmt.Errorf("mode is %q but token is empty", AuthModeToken)
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
		Backend: BackendConfig{
			BaseURL: "http://localhost:3001",
		},
		Flows: FlowsConfig{
			Path: "./flows",
		},
		SQLite: SQLiteConfig{
			Path: "./nodeflow.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
