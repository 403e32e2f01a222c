package postgres

import "fmt"

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"

	// Schemas limits discovery to the listed schemas; empty means every
	// non-system schema.
	Schemas        []string
	MaxConnections int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:           DefaultPort(),
		SSLMode:        DefaultSSLMode(),
		MaxConnections: 10,
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := intValue(config["port"]); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok {
		cfg.Database = database
	} else if name, ok := config["name"].(string); ok {
		cfg.Database = name
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode, ok := config["ssl_mode"].(string); ok {
		cfg.SSLMode = sslMode
	}

	switch schemas := config["schemas"].(type) {
	case []string:
		cfg.Schemas = append(cfg.Schemas, schemas...)
	case []any:
		for _, s := range schemas {
			if name, ok := s.(string); ok {
				cfg.Schemas = append(cfg.Schemas, name)
			}
		}
	case string:
		cfg.Schemas = []string{schemas}
	}

	if maxConns, ok := intValue(config["max_connections"]); ok && maxConns > 0 {
		cfg.MaxConnections = int32(maxConns)
	}

	return cfg, nil
}

// intValue accepts JSON numbers (float64) and YAML integers.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}
