// Package config loads the application configuration from YAML files with
// environment overrides for deployment-specific secrets.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/storekit/searchsync/internal/api/rest"
	mongostore "github.com/storekit/searchsync/internal/catalog/mongo"
	"github.com/storekit/searchsync/internal/events"
	"github.com/storekit/searchsync/internal/searchindex"
	"github.com/storekit/searchsync/internal/syncer"
)

// Config holds the application configuration.
type Config struct {
	Server  rest.Config        `yaml:"server"`
	Catalog mongostore.Config  `yaml:"catalog"`
	Index   searchindex.Config `yaml:"index"`
	Events  events.Config      `yaml:"events"`
	Sync    syncer.Config      `yaml:"sync"`
	Logging LoggingConfig      `yaml:"logging"`
}

// LoadConfig loads configuration in layers:
// defaults -> config.yml -> config.local.yml -> environment overrides.
func LoadConfig() *Config {
	cfg := defaults()

	loadFile("config/config.yml", cfg)
	loadFile("config/config.local.yml", cfg)

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	return cfg
}

func defaults() *Config {
	return &Config{
		Server:  rest.DefaultConfig(),
		Catalog: mongostore.DefaultConfig(),
		Index:   searchindex.DefaultConfig(),
		Events:  events.DefaultConfig(),
		Sync:    syncer.DefaultConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if c.Catalog.URI == "" {
		return fmt.Errorf("catalog: uri must not be empty")
	}
	if c.Index.Host == "" {
		return fmt.Errorf("index: host must not be empty")
	}
	return nil
}

// applyEnvOverrides lets deployments inject endpoints and secrets without
// touching the config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHSYNC_MONGO_URI"); v != "" {
		c.Catalog.URI = v
	}
	if v := os.Getenv("SEARCHSYNC_NATS_URL"); v != "" {
		c.Events.URL = v
	}
	if v := os.Getenv("SEARCHSYNC_MEILI_HOST"); v != "" {
		c.Index.Host = v
	}
	if v := os.Getenv("SEARCHSYNC_MEILI_API_KEY"); v != "" {
		c.Index.APIKey = v
	}
	if v := os.Getenv("SEARCHSYNC_AUTH_SECRET"); v != "" {
		c.Server.AuthSecret = v
	}
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Printf("Warning: Error reading %s: %v", filename, err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("Warning: Error parsing %s: %v", filename, err)
	}
}
