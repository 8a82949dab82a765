package config

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by viper.
const EnvPrefix = "SKILLTOKEN"

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", Common.DataDir)
	v.SetDefault("admin_account", "")

	v.SetDefault("grpc.addr", ServerDefaults.ListenAddr)
	v.SetDefault("grpc.max_recv_msg_size", ServerDefaults.MaxRecvMsgSize)
	v.SetDefault("grpc.max_send_msg_size", ServerDefaults.MaxSendMsgSize)

	v.SetDefault("observability.log_level", Common.LogLevel)
	v.SetDefault("observability.log_format", Common.LogFormat)
	v.SetDefault("observability.metrics_addr", ServerDefaults.MetricsAddr)
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.service_name", "skilltoken")
	v.SetDefault("observability.service_version", "dev")

	v.SetDefault("storage.backend", ServerDefaults.StorageBackend)

	v.SetDefault("archive.backend", "")
	v.SetDefault("archive.interval", ServerDefaults.ArchiveInterval)
	v.SetDefault("archive.format", ServerDefaults.ArchiveFormat)

	v.SetDefault("events.buffer_size", ServerDefaults.EventBuffer)
	v.SetDefault("events.intake_size", ServerDefaults.EventIntake)
	v.SetDefault("events.workers", ServerDefaults.EventWorkers)
	v.SetDefault("events.backpressure", "drop")
}

// BindServeFlags binds cobra flags to viper for the serve command.
func BindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.String("config", "", "config file path")
	f.String("addr", "", "gRPC listen address")
	f.String("admin", "", "bootstrap admin account allowed to grant roles")
	f.String("storage", "", "ledger backend (memory, sqlite, badger, redis)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")
	f.String("metrics-addr", "", "metrics HTTP listen address (empty disables)")
	f.String("archive", "", "snapshot archive sink (file, s3); empty disables")

	_ = v.BindPFlag("grpc.addr", f.Lookup("addr"))
	_ = v.BindPFlag("admin_account", f.Lookup("admin"))
	_ = v.BindPFlag("storage.backend", f.Lookup("storage"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
	_ = v.BindPFlag("archive.backend", f.Lookup("archive"))
}

// Load reads config from flags, env, and file, returning the merged Config.
// A missing config file is only an error when configFile names it explicitly.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("skilltoken")
		v.SetConfigType("hcl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.skilltoken")
		v.AddConfigPath("/etc/skilltoken")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
