// Package config models boardline.yml, the optional per-workspace
// configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"boardline/internal/domain"
)

// Config models boardline.yml.
type Config struct {
	Storage struct {
		// Backend is memory, sqlite, or postgres.
		Backend string `yaml:"backend"`
		// Path is the database file for the sqlite backend.
		Path string `yaml:"path"`
		// DSN is the connection string for the postgres backend.
		DSN string `yaml:"dsn"`
	} `yaml:"storage"`
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`
	Webhooks []Webhook `yaml:"webhooks"`
	// Workflows are custom definitions registered at startup, alongside
	// the built-in presets.
	Workflows []WorkflowDef `yaml:"workflows"`
}

type Webhook struct {
	URL string `yaml:"url"`
	// Events filters which bus events are delivered; empty means all.
	Events []string `yaml:"events"`
}

type WorkflowDef struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	States      []string            `yaml:"states"`
	Transitions map[string][]string `yaml:"transitions"`
}

// Domain converts a config workflow definition to the domain type.
func (w WorkflowDef) Domain() domain.Workflow {
	return domain.Workflow{ID: w.ID, Name: w.Name, States: w.States, Transitions: w.Transitions}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "", "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("config.storage.path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config.storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	for i, h := range c.Webhooks {
		if h.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	for i, w := range c.Workflows {
		if w.ID == "" {
			return fmt.Errorf("config.workflows[%d].id is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "boardline.yml")
}

// Default returns a config with baked-in defaults: in-memory storage and
// the standard listen address.
func Default() *Config {
	var cfg Config
	cfg.Storage.Backend = "memory"
	cfg.Server.Addr = ":8484"
	cfg.Server.BasePath = "/api/v1"
	return &cfg
}

// LoadOptional returns defaults if the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// unset fall back to defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8484"
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/api/v1"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}
