package storage

import (
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GetString returns config[key], or defaultValue when the key is absent or empty.
func GetString(config map[string]string, key, defaultValue string) string {
	if v, ok := config[key]; ok && v != "" {
		return v
	}
	return defaultValue
}

// lookup returns the raw value and whether the key is set to something non-empty.
func lookup(config map[string]string, key string) (string, bool) {
	v, ok := config[key]
	return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
}

// GetBool accepts true/false, 1/0 and yes/no in any case.
func GetBool(config map[string]string, key string, defaultValue bool) (bool, error) {
	v, ok := lookup(config, key)
	if !ok {
		return defaultValue, nil
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, &ConfigError{Field: key, Value: v, Message: "must be a boolean (true/false, 1/0, yes/no)"}
}

// GetInt parses a base-10 integer.
func GetInt(config map[string]string, key string, defaultValue int) (int, error) {
	n, err := GetInt64(config, key, int64(defaultValue))
	return int(n), err
}

// GetInt64 parses a base-10 64-bit integer.
func GetInt64(config map[string]string, key string, defaultValue int64) (int64, error) {
	v, ok := lookup(config, key)
	if !ok {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &ConfigError{Field: key, Value: v, Message: "must be an integer", Cause: err}
	}
	return n, nil
}

// GetDuration accepts Go duration strings ("5s", "1m30s") or plain integer seconds.
func GetDuration(config map[string]string, key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := lookup(config, key)
	if !ok {
		return defaultValue, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, &ConfigError{Field: key, Value: v, Message: "must be a duration (e.g., '5s', '1m30s') or integer seconds"}
}

// ExpandPath expands a leading ~ to the user's home directory and cleans the path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return filepath.Clean(path)
}

// ResolvePath expands path and anchors relative results under dataDir.
// An empty dataDir leaves relative paths untouched.
func ResolvePath(path, dataDir string) string {
	path = ExpandPath(path)
	if filepath.IsAbs(path) || dataDir == "" {
		return path
	}
	return filepath.Join(ExpandPath(dataDir), path)
}

// MergeConfig returns a new map holding dst overlaid with src.
func MergeConfig(dst, src map[string]string) map[string]string {
	result := make(map[string]string, len(dst)+len(src))
	maps.Copy(result, dst)
	maps.Copy(result, src)
	return result
}
