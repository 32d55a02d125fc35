package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config contains provisioning tool configuration parameters.
type Config struct {
	LogLevel int    `env:"LOG_LEVEL" envDefault:"0"`
	Cosmos   Cosmos `envPrefix:"COSMOS_"`
}

// Cosmos contains Cosmos DB account connection parameters.
type Cosmos struct {
	Endpoint string `env:"ENDPOINT" envDefault:"https://localhost:8081"`
	Key      string `env:"KEY"`
	Database string `env:"DATABASE" envDefault:"IdentityDb"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
