package datasource

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// AdapterInfo describes a registered adapter type.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "mysql", "sqlite"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
	Dialect     string `json:"dialect"` // SQL dialect of generated statements
}

// Factory builds an unconnected adapter from its configuration map.
type Factory func(config map[string]any, logger *zap.Logger) (Adapter, error)

// AdapterRegistration pairs adapter info with its factory.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters ordered by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a data source type.
// Returns nil if type is not registered.
func GetFactory(dsType string) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}
