package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.crewroom/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8090
// database:
//   path: ~/.crewroom/crewroom.db
// auth:
//   jwt_secret: change-me
//   token_ttl_hours: 72
// ai:
//   default_model: gpt-4o
//   reasoning_model: o1
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	AI       AIConfig       `yaml:"ai"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path *string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret     *string `yaml:"jwt_secret"`
	TokenTTLHours *int    `yaml:"token_ttl_hours"`
}

type AIConfig struct {
	DefaultModel   *string `yaml:"default_model"`
	ReasoningModel *string `yaml:"reasoning_model"`
}

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8090
	DefaultDatabaseFile  = "crewroom.db"
	DefaultTokenTTLHours = 72
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".crewroom")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.crewroom/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	if strings.TrimSpace(cfg.Host()) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}
	if port := cfg.Port(); port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions; the file may hold the JWT secret.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DatabasePath returns the sqlite file path, defaulting to
// ~/.crewroom/crewroom.db next to the config file.
func (c *AppConfig) DatabasePath() string {
	if c != nil && c.Database.Path != nil && strings.TrimSpace(*c.Database.Path) != "" {
		return expandHome(*c.Database.Path)
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return DefaultDatabaseFile
	}
	return filepath.Join(configDir, DefaultDatabaseFile)
}

// JWTSecret returns the configured secret. The CREWROOM_JWT_SECRET environment
// variable takes precedence so deployments don't have to write secrets to disk.
func (c *AppConfig) JWTSecret() string {
	if v := strings.TrimSpace(os.Getenv("CREWROOM_JWT_SECRET")); v != "" {
		return v
	}
	if c != nil && c.Auth.JWTSecret != nil {
		return strings.TrimSpace(*c.Auth.JWTSecret)
	}
	return ""
}

func (c *AppConfig) TokenTTLHours() int {
	if c == nil || c.Auth.TokenTTLHours == nil || *c.Auth.TokenTTLHours <= 0 {
		return DefaultTokenTTLHours
	}
	return *c.Auth.TokenTTLHours
}

// DefaultModel is the model name used for the analysis step when a request
// doesn't name one. The empty string means "first configured chat model".
func (c *AppConfig) DefaultModel() string {
	if c == nil || c.AI.DefaultModel == nil {
		return ""
	}
	return strings.TrimSpace(*c.AI.DefaultModel)
}

// ReasoningModel is the model name used when a breakdown request asks for the
// reasoning variant. Falls back to DefaultModel when unset.
func (c *AppConfig) ReasoningModel() string {
	if c == nil || c.AI.ReasoningModel == nil {
		return c.DefaultModel()
	}
	return strings.TrimSpace(*c.AI.ReasoningModel)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

func ptr[T any](v T) *T { return &v }
