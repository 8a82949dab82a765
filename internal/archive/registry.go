package archive

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MasterChonk/SkillToken-V2/internal/storage"
)

// Factory creates a Sink from a configuration map.
type Factory func(ctx context.Context, config map[string]string) (Sink, error)

// DefaultsFunc returns the default configuration for a sink.
type DefaultsFunc func() map[string]string

type registration struct {
	factory  Factory
	defaults DefaultsFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]registration)
)

// Register adds a sink factory. It panics on duplicate names.
func Register(name string, factory Factory, defaults DefaultsFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("archive: sink %q already registered", name))
	}
	registry[name] = registration{factory: factory, defaults: defaults}
}

// New creates the named sink. config is overlaid on the sink defaults and
// dataDir is passed as storage.KeyDataDir.
func New(ctx context.Context, name string, config map[string]string, dataDir string) (Sink, error) {
	registryMu.RLock()
	reg, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, storage.NewConfigError(name, "", fmt.Sprintf("unknown archive sink %q (available: %v)", name, ListSinks()))
	}

	var defaults map[string]string
	if reg.defaults != nil {
		defaults = reg.defaults()
	}
	merged := storage.MergeConfig(defaults, config)
	if dataDir != "" {
		merged[storage.KeyDataDir] = dataDir
	}

	sink, err := reg.factory(ctx, merged)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "archive sink created", "sink", name)
	return sink, nil
}

// ListSinks returns the registered sink names, sorted.
func ListSinks() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
