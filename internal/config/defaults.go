package config

import (
	"os"
	"path/filepath"
	"time"
)

// Common contains defaults shared by the server and client commands.
var Common = struct {
	Addr      string
	LogLevel  string
	LogFormat string
	DataDir   string
}{
	Addr:      "localhost:50051",
	LogLevel:  "info",
	LogFormat: "text",
	DataDir:   DefaultDataDir(),
}

// DefaultDataDir returns the default data directory (~/.skilltoken).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".skilltoken"
	}
	return filepath.Join(home, ".skilltoken")
}

// ServerDefaults contains default values for the registry server.
var ServerDefaults = struct {
	ListenAddr      string
	MaxRecvMsgSize  int
	MaxSendMsgSize  int
	MetricsAddr     string
	StorageBackend  string
	ArchiveInterval time.Duration
	ArchiveFormat   string
	EventBuffer     int
	EventIntake     int
	EventWorkers    int
}{
	ListenAddr:      ":50051",
	MaxRecvMsgSize:  4 * 1024 * 1024, // 4MB
	MaxSendMsgSize:  4 * 1024 * 1024, // 4MB
	MetricsAddr:     ":9090",
	StorageBackend:  "sqlite",
	ArchiveInterval: time.Hour,
	ArchiveFormat:   "json",
	EventBuffer:     256,
	EventIntake:     4096,
	EventWorkers:    2,
}
