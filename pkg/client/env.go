package client

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

// DefaultAddr is the registry address used when none is configured.
const DefaultAddr = "localhost:50051"

// EnvConfig is the client configuration read from the environment.
type EnvConfig struct {
	Addr    string `env:"SKILLTOKEN_ADDR" envDefault:"localhost:50051"`
	Account string `env:"SKILLTOKEN_ACCOUNT"`
}

// LoadEnv reads SKILLTOKEN_ADDR and SKILLTOKEN_ACCOUNT.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := env.Parse(&cfg); err != nil {
		return EnvConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Options converts the configuration into dial options.
func (c EnvConfig) Options() ([]Option, error) {
	if c.Account == "" {
		return nil, nil
	}
	a, err := credential.ParseAccount(c.Account)
	if err != nil {
		return nil, fmt.Errorf("SKILLTOKEN_ACCOUNT: %w", err)
	}
	return []Option{WithAccount(a)}, nil
}
