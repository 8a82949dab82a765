package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MasterChonk/SkillToken-V2/pkg/client"
)

// ClientConfig holds the settings shared by every client command. Values come
// from the environment; command-line flags override them.
type ClientConfig struct {
	client.EnvConfig
	Output  string        `env:"SKILLTOKEN_OUTPUT" envDefault:"text"`
	Timeout time.Duration `env:"SKILLTOKEN_TIMEOUT" envDefault:"10s"`
}

// LoadClient parses ClientConfig from the process environment.
func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
