package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/healthwatch/internal/api"
	"github.com/healthwatch/internal/billing"
	"github.com/healthwatch/internal/events"
	"github.com/healthwatch/internal/scoring"
)

// Config represents the overall application configuration.
type Config struct {
	Server   api.GatewayConfig `yaml:"server"`
	Database DatabaseConfig    `yaml:"database"`
	Kafka    KafkaConfig       `yaml:"kafka"`
	Stripe   StripeConfig      `yaml:"stripe"`
	Scoring  scoring.Config    `yaml:"scoring"`
}

// DatabaseConfig represents activity store configuration.
type DatabaseConfig struct {
	// "postgres" for durable storage, "memory" for demos and local runs.
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

// KafkaConfig wraps the producer configuration with an enable switch.
type KafkaConfig struct {
	Enabled bool `yaml:"enabled"`
	events.KafkaConfig `yaml:",inline"`
}

// StripeConfig wraps webhook ingestion configuration with an enable switch.
type StripeConfig struct {
	Enabled bool `yaml:"enabled"`
	billing.WebhookConfig `yaml:",inline"`
}

// Default returns the baked-in configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:   api.DefaultGatewayConfig(),
		Database: DatabaseConfig{Driver: "memory"},
		Kafka:    KafkaConfig{Enabled: false, KafkaConfig: events.DefaultKafkaConfig()},
		Stripe:   StripeConfig{Enabled: false, WebhookConfig: billing.DefaultWebhookConfig()},
		Scoring:  scoring.DefaultConfig(),
	}
}

// Load reads configuration from a YAML file layered over defaults, then
// applies environment overrides for secrets.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
		c.Database.Driver = "postgres"
	}
	if secret := os.Getenv("STRIPE_WEBHOOK_SECRET"); secret != "" {
		c.Stripe.WebhookSecret = secret
	}
}
