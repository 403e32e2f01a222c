package sqldb

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-nlq/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 8+, MariaDB 10.5+",
			Dialect:     "mysql",
		},
		Factory: factoryFor(DriverMySQL),
	})
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Open a local SQLite 3 database file",
			Dialect:     "sqlite",
		},
		Factory: factoryFor(DriverSQLite),
	})
}

func factoryFor(driver string) datasource.Factory {
	return func(config map[string]any, logger *zap.Logger) (datasource.Adapter, error) {
		cfg, err := FromMap(driver, config)
		if err != nil {
			return nil, err
		}
		return NewAdapter(cfg, logger)
	}
}
