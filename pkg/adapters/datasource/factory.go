package datasource

import (
	"fmt"

	"go.uber.org/zap"
)

// AdapterFactory creates adapters from the registry.
type AdapterFactory interface {
	// NewAdapter creates an unconnected adapter for the given data source type.
	NewAdapter(dsType string, config map[string]any) (Adapter, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	logger *zap.Logger
}

// NewAdapterFactory returns a factory that uses the global registry.
func NewAdapterFactory(logger *zap.Logger) AdapterFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registryFactory{logger: logger}
}

func (f *registryFactory) NewAdapter(dsType string, config map[string]any) (Adapter, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("unsupported datasource type: %s (not compiled in)", dsType)
	}
	return factory(config, f.logger.With(zap.String("datasource_type", dsType)))
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements AdapterFactory at compile time.
var _ AdapterFactory = (*registryFactory)(nil)
