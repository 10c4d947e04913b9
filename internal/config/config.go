package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models hive.yml.
type Config struct {
	Workspace struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"workspace"`
	Generator struct {
		Provider       string `yaml:"provider"`
		Model          string `yaml:"model"`
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"generator"`
	Intake struct {
		MinChannelBudget int `yaml:"min_channel_budget"`
		MaxChannelBudget int `yaml:"max_channel_budget"`
	} `yaml:"intake"`
	Channels struct {
		Core map[string]CoreChannel `yaml:"core"`
	} `yaml:"channels"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// CoreChannel is a catalog entry the heuristic generator always proposes.
type CoreChannel struct {
	Description string `yaml:"description"`
	IsPrivate   bool   `yaml:"is_private"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from the workspace directory.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with hive workspace config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Workspace.ID == "" {
		return fmt.Errorf("config.workspace.id is required")
	}
	switch c.Generator.Provider {
	case "", "heuristic", "openai":
	default:
		return fmt.Errorf("config.generator.provider must be heuristic or openai")
	}
	if c.Generator.TimeoutSeconds < 0 {
		return fmt.Errorf("config.generator.timeout_seconds must not be negative")
	}
	if c.Intake.MinChannelBudget < 1 {
		return fmt.Errorf("config.intake.min_channel_budget must be at least 1")
	}
	if c.Intake.MaxChannelBudget < c.Intake.MinChannelBudget {
		return fmt.Errorf("config.intake.max_channel_budget must be >= min_channel_budget")
	}
	for name := range c.Channels.Core {
		if name == "" {
			return fmt.Errorf("config.channels.core contains an empty channel name")
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace directory.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hive.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(workspaceID string) string {
	return fmt.Sprintf(defaultTemplate, workspaceID, workspaceID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a workspace.
func Default(workspaceID string) *Config {
	var cfg Config
	cfg.Workspace.ID = workspaceID
	cfg.Workspace.Name = workspaceID
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(workspaceID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `workspace:
  id: %s
  name: %s

generator:
  provider: heuristic
  model: ""
  base_url: ""
  timeout_seconds: 30

intake:
  min_channel_budget: 1
  max_channel_budget: 50

channels:
  core:
    general:
      description: "General discussion for the whole workspace"
    announcements:
      description: "Official announcements from organizers"
`
