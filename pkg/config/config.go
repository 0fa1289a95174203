// Package config provides configuration management for facelive.
// It loads configuration from YAML files with sensible defaults and applies
// FACELIVE_* environment overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/MrCodeEU/facelive/pkg/liveness"
	"github.com/MrCodeEU/facelive/pkg/logging"
	"github.com/MrCodeEU/facelive/pkg/provider"
	"github.com/MrCodeEU/facelive/pkg/recognition"
	"github.com/MrCodeEU/facelive/pkg/sampler"
	"github.com/MrCodeEU/facelive/pkg/signals"
	"github.com/MrCodeEU/facelive/pkg/storage"
	"github.com/MrCodeEU/facelive/pkg/video"
)

// EnvPrefix prefixes every environment override, e.g.
// FACELIVE_PROVIDERS_DEEPFACE_BASE_URL.
const EnvPrefix = "FACELIVE"

// Default config locations, system first.
const (
	SystemConfigPath = "/etc/facelive/facelive.yaml"
	UserConfigPath   = "~/.config/facelive/facelive.yaml"
)

// Config holds all facelive configuration.
type Config struct {
	Video       video.Config        `yaml:"video" envconfig:"VIDEO"`
	Sampling    sampler.Config      `yaml:"sampling" envconfig:"SAMPLING"`
	Liveness    liveness.Thresholds `yaml:"liveness" envconfig:"LIVENESS"`
	Signals     signals.Config      `yaml:"signals" envconfig:"SIGNALS"`
	Providers   provider.Config     `yaml:"providers" envconfig:"PROVIDERS"`
	Recognition recognition.Config  `yaml:"recognition" envconfig:"RECOGNITION"`
	Storage     storage.Config      `yaml:"storage" envconfig:"STORAGE"`
	Logging     logging.Config      `yaml:"logging" envconfig:"LOGGING"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Video:       video.DefaultConfig(),
		Sampling:    sampler.DefaultConfig(),
		Liveness:    liveness.DefaultThresholds(),
		Signals:     signals.DefaultConfig(),
		Providers:   provider.DefaultConfig(),
		Recognition: recognition.DefaultConfig(),
		Storage:     storage.DefaultConfig(),
		Logging:     logging.DefaultConfig(),
	}
}

// Load loads configuration from the specified file, then applies the
// environment.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	return config, nil
}

// LoadDefault tries the system config, then the user config, then falls back
// to defaults. The environment is applied in every case.
func LoadDefault() (*Config, error) {
	for _, path := range []string{SystemConfigPath, ExpandPath(UserConfigPath)} {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	config := DefaultConfig()
	if err := config.ApplyEnv(); err != nil {
		return config, err
	}
	return config, nil
}

// ApplyEnv overrides fields from FACELIVE_* variables.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Video.Backend {
	case "auto", "ffmpeg", "opencv":
	default:
		return fmt.Errorf("invalid video backend: %s (must be auto, ffmpeg, or opencv)", c.Video.Backend)
	}
	if c.Video.Timeout < 0 {
		return fmt.Errorf("video timeout must not be negative, got %s", c.Video.Timeout)
	}

	if err := c.Sampling.Validate(); err != nil {
		return err
	}
	if err := c.Liveness.Validate(); err != nil {
		return err
	}
	if err := c.Providers.Validate(); err != nil {
		return err
	}

	if c.Recognition.Threshold < -1 || c.Recognition.Threshold > 1 {
		return fmt.Errorf("recognition threshold must be between -1 and 1, got %f", c.Recognition.Threshold)
	}
	if c.Providers.Embedder == provider.Dlib && c.Recognition.ModelPath == "" {
		return fmt.Errorf("recognition model_path must be set for the dlib embedder")
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Video.FFmpegPath = ExpandPath(c.Video.FFmpegPath)
	c.Providers.Mesh.SocketPath = ExpandPath(c.Providers.Mesh.SocketPath)
	c.Recognition.ModelPath = ExpandPath(c.Recognition.ModelPath)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// EnsureDirectories creates the directories the configured backends write
// to.
func (c *Config) EnsureDirectories() error {
	if c.Storage.Backend == storage.BackendFile {
		if err := os.MkdirAll(filepath.Join(c.Storage.DataDir, "subjects"), 0700); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	if c.Providers.Embedder == provider.Dlib {
		if err := os.MkdirAll(c.Recognition.ModelPath, 0755); err != nil {
			return fmt.Errorf("failed to create models directory: %w", err)
		}
	}

	if c.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.Logging.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	return nil
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
