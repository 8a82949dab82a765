// Package config loads skilltoken server and client configuration.
//
// Server settings come from flags, SKILLTOKEN_* environment variables and an
// optional HCL/YAML/JSON config file, merged through viper. Client commands
// read a small env-only block (see ClientConfig).
package config

import (
	"fmt"
	"time"

	"github.com/MasterChonk/SkillToken-V2/pkg/credential"
)

type Config struct {
	DataDir       string              `mapstructure:"data_dir"`
	AdminAccount  string              `mapstructure:"admin_account"`
	GRPC          GRPCConfig          `mapstructure:"grpc"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Storage       BackendConfig       `mapstructure:"storage"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Events        EventsConfig        `mapstructure:"events"`
}

// BackendConfig selects a registered backend by name and passes it a flat
// string map of backend-specific settings.
type BackendConfig struct {
	Backend string            `mapstructure:"backend"`
	Config  map[string]string `mapstructure:"config"`
}

// ArchiveConfig enables periodic snapshot export. An empty Backend disables it.
type ArchiveConfig struct {
	Backend  string            `mapstructure:"backend"`
	Interval time.Duration     `mapstructure:"interval"`
	Format   string            `mapstructure:"format"`
	Config   map[string]string `mapstructure:"config"`
}

type GRPCConfig struct {
	Addr           string `mapstructure:"addr"`
	MaxRecvMsgSize int    `mapstructure:"max_recv_msg_size"`
	MaxSendMsgSize int    `mapstructure:"max_send_msg_size"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string `mapstructure:"otlp_protocol"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// EventsConfig tunes live notification fan-out.
type EventsConfig struct {
	BufferSize   int    `mapstructure:"buffer_size"`
	IntakeSize   int    `mapstructure:"intake_size"`
	Workers      int    `mapstructure:"workers"`
	Backpressure string `mapstructure:"backpressure"`
}

// Admin parses the configured bootstrap admin account.
func (c Config) Admin() (credential.Account, error) {
	if c.AdminAccount == "" {
		return "", fmt.Errorf("admin_account is required")
	}
	a, err := credential.ParseAccount(c.AdminAccount)
	if err != nil {
		return "", fmt.Errorf("admin_account: %w", err)
	}
	return a, nil
}

// Validate checks settings that cannot be deferred to backend factories.
func (c Config) Validate() error {
	if _, err := c.Admin(); err != nil {
		return err
	}
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage.backend is required")
	}
	if c.Archive.Backend != "" {
		switch c.Archive.Format {
		case "json", "yaml":
		default:
			return fmt.Errorf("archive.format %q: want json or yaml", c.Archive.Format)
		}
		if c.Archive.Interval < time.Second {
			return fmt.Errorf("archive.interval %s: must be at least 1s", c.Archive.Interval)
		}
	}
	switch c.Events.Backpressure {
	case "", "drop", "block", "disconnect":
	default:
		return fmt.Errorf("events.backpressure %q: want drop, block or disconnect", c.Events.Backpressure)
	}
	return nil
}
