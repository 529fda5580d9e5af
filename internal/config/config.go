// Package config loads hub settings from a YAML file, with environment
// variables (optionally from a .env file) taking precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate.
const (
	DefaultDatabase = "hubadapters.db"
	DefaultHTTPPort = 8080
	DefaultLogLevel = "info"
)

// Config is the whole settings file.
type Config struct {
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	Database      string              `yaml:"database"`
	HTTP          HTTPConfig          `yaml:"http"`
	LogLevel      string              `yaml:"log_level"`

	// Platform imports: each item starts an import flow unless an entry
	// for it already exists.
	Stookalert []StookalertConfig `yaml:"stookalert"`
	Fritz      []FritzConfig      `yaml:"fritz"`
}

// HomeAssistantConfig points at the Home Assistant instance sensor states are
// mirrored to. Mirroring is off when URL is empty.
type HomeAssistantConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	ReadOnly bool   `yaml:"read_only"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// StookalertConfig is one YAML-configured province sensor
type StookalertConfig struct {
	Province string `yaml:"province"`
}

// FritzConfig is one YAML-configured gateway
type FritzConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads the settings file at path, overlays the environment and
// validates the result. A missing file is not an error: the hub then runs
// on defaults and environment alone.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("Config file not found, using defaults", zap.String("path", path))
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			logger.Info("Config loaded", zap.String("path", path))
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment. Variables
// already set are kept. Missing files are skipped.
func LoadDotEnv(logger *zap.Logger, files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			logger.Debug("No env file loaded", zap.String("file", file), zap.Error(err))
			continue
		}
		logger.Info("Loaded env file", zap.String("file", file))
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HA_URL"); v != "" {
		c.HomeAssistant.URL = v
	}
	if v := os.Getenv("HA_TOKEN"); v != "" {
		c.HomeAssistant.Token = v
	}
	if v := os.Getenv("READ_ONLY"); v != "" {
		c.HomeAssistant.ReadOnly = v == "true"
	}
	if v := os.Getenv("HUB_DB"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("HUB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HUB_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HUB_HTTP_PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}
	return nil
}

// Validate fills defaults and rejects settings the hub cannot run with
func (c *Config) Validate() error {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}

	if c.HomeAssistant.URL != "" && c.HomeAssistant.Token == "" {
		return fmt.Errorf("home_assistant.token is required when home_assistant.url is set")
	}

	for i, s := range c.Stookalert {
		if s.Province == "" {
			return fmt.Errorf("stookalert[%d]: province is required", i)
		}
	}

	for i, f := range c.Fritz {
		if f.Port < 0 || f.Port > 65535 {
			return fmt.Errorf("fritz[%d]: port %d out of range", i, f.Port)
		}
	}

	return nil
}
