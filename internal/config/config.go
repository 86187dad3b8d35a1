package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config models agendaviva.yml.
type Config struct {
	Portal struct {
		Name     string `yaml:"name" json:"name"`
		Timezone string `yaml:"timezone" json:"timezone"`
	} `yaml:"portal" json:"portal"`
	Availability struct {
		HorizonDays    int `yaml:"horizon_days" json:"horizon_days"`
		LookbackDays   int `yaml:"lookback_days" json:"lookback_days"`
		MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`
	} `yaml:"availability" json:"availability"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

// WebhookConfig describes one webhook endpoint fed from the event log.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret" json:"secret"`
	Events         []string `yaml:"events" json:"events"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Portal.Name == "" {
		return fmt.Errorf("config.portal.name is required")
	}
	if c.Availability.HorizonDays <= 0 {
		return fmt.Errorf("config.availability.horizon_days must be positive")
	}
	if c.Availability.LookbackDays < 0 {
		return fmt.Errorf("config.availability.lookback_days must not be negative")
	}
	if c.Availability.MaxOccurrences <= 0 {
		return fmt.Errorf("config.availability.max_occurrences must be positive")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		for _, evt := range wh.Events {
			if evt == "" {
				return fmt.Errorf("webhook %s has empty event filter", wh.URL)
			}
		}
	}
	return nil
}

// Default returns the default Config struct for a portal.
func Default(name string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, name)), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
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

// ToYAML renders the config for export.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `portal:
  name: %s
  timezone: UTC

availability:
  horizon_days: 30
  lookback_days: 1
  max_occurrences: 100

webhooks: []
`
