package internal

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/herald/internal/apperr"
	"github.com/starford/herald/internal/github"
	"github.com/starford/herald/internal/publish"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Remote RemoteConfig      `yaml:"remote"`
	Auth   AuthConfig        `yaml:"auth"`
	Watch  WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration. The remote section is checked
// separately, right before publishing, so the index can run without it.
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
	if err := c.Watch.Validate(); err != nil {
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

// SQLiteConfig holds the snapshot database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RemoteConfig describes the repository notes are published to.
type RemoteConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Owner       string        `yaml:"owner"`
	Repo        string        `yaml:"repo"`
	BaseBranch  string        `yaml:"base_branch"`
	BranchRoot  string        `yaml:"branch_root"`
	ContentPath string        `yaml:"content_path"`
	Token       string        `yaml:"token"`
	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RepoConfig returns the repository part used by the publish manager.
func (c *RemoteConfig) RepoConfig() publish.RepoConfig {
	return publish.RepoConfig{
		Owner:       c.Owner,
		Repo:        c.Repo,
		BranchRoot:  c.BranchRoot,
		ContentPath: c.ContentPath,
		BaseBranch:  c.BaseBranch,
	}
}

// Validate checks the repository reference and the credential. Failures
// wrap apperr.ErrConfig.
func (c *RemoteConfig) Validate() error {
	if err := c.RepoConfig().Validate(); err != nil {
		return err
	}
	if c.Token == "" {
		return fmt.Errorf("%w: remote: token is empty", apperr.ErrConfig)
	}
	if err := validation.Validate(c.Timeout, validation.Min(time.Duration(0))); err != nil {
		return fmt.Errorf("%w: remote: timeout: %v", apperr.ErrConfig, err)
	}
	return nil
}

// Client validates the section and builds the GitHub client.
func (c *RemoteConfig) Client(logger *slog.Logger) (*github.Client, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	client, err := github.NewClient(github.Config{
		BaseURL:    c.BaseURL,
		Token:      c.Token,
		UserAgent:  c.UserAgent,
		HTTPClient: &http.Client{Timeout: c.Timeout},
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrConfig, err)
	}
	return client, nil
}

// AuthConfig holds authentication configuration for the local HTTP API.
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

// WatchConfig controls the filesystem watcher.
type WatchConfig struct {
	Enabled      bool          `yaml:"enabled"`
	RenameWindow time.Duration `yaml:"rename_window"`
}

// Validate validates the watcher configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RenameWindow, validation.Min(time.Duration(0)), validation.Max(10*time.Second)),
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
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./herald.db",
		},
		Remote: RemoteConfig{
			BaseURL:     github.DefaultBaseURL,
			BranchRoot:  "herald",
			ContentPath: "content/posts",
			UserAgent:   github.DefaultUserAgent,
			Timeout:     30 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			Enabled:      true,
			RenameWindow: 200 * time.Millisecond,
		},
	}
}
