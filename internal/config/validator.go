package config

import (
	"fmt"
	"strings"
)

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return fmt.Errorf("server config error: %v", err)
	}
	if err := c.validateDatabase(); err != nil {
		return fmt.Errorf("database config error: %v", err)
	}
	if err := c.validateKafka(); err != nil {
		return fmt.Errorf("kafka config error: %v", err)
	}
	if err := c.validateStripe(); err != nil {
		return fmt.Errorf("stripe config error: %v", err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring config error: %v", err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "memory":
		return nil
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("url is required for driver=postgres")
		}
		return nil
	default:
		return fmt.Errorf("unknown driver: %s", c.Database.Driver)
	}
}

func (c *Config) validateKafka() error {
	if !c.Kafka.Enabled {
		return nil
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("brokers is required when kafka is enabled")
	}
	for _, broker := range c.Kafka.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("invalid broker format: %s (expected host:port)", broker)
		}
	}
	if c.Kafka.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	return nil
}

func (c *Config) validateStripe() error {
	if !c.Stripe.Enabled {
		return nil
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("webhook_secret is required when stripe ingestion is enabled")
	}
	if c.Stripe.CustomerIDMetadataKey == "" {
		return fmt.Errorf("customer_id_metadata_key is required")
	}
	return nil
}
