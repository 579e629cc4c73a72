// Package config loads the service configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/warp/workforce-engine/factory"
)

// DefaultPath is where Load looks for the config file.
const DefaultPath = "workforce.yaml"

type ServerConfig struct {
	Port         int           `yaml:"port" validate:"required,min=1,max=65535"`
	CORSOrigins  []string      `yaml:"cors_origins" validate:"dive,required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=json console"`
}

type NotificationConfig struct {
	BufferSize int `yaml:"buffer_size" validate:"min=1"`
}

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Log           LogConfig          `yaml:"log"`
	Notifications NotificationConfig `yaml:"notifications"`
	Policy        factory.PolicyJSON `yaml:"policy"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database:      DatabaseConfig{Path: "./workforce.db"},
		Log:           LogConfig{Level: "info", Format: "console"},
		Notifications: NotificationConfig{BufferSize: 256},
	}
}

// Load reads DefaultPath, falling back to Default when it does not exist.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFromPath loads and validates the configuration at path. Keys missing
// from the file keep their Default values.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags and the embedded policy.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := factory.NewPolicyFactory().FromJSON(cfg.Policy); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
