package sqldb

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// Drivers served by this package.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Config holds the connection options of a database/sql data source.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// Path is the SQLite database file.
	Path string

	Params       map[string]string
	MaxOpenConns int
}

// FromMap creates a Config for driver from a generic config map.
func FromMap(driver string, cfgMap map[string]any) (*Config, error) {
	cfg := &Config{Driver: driver, MaxOpenConns: 10, Params: map[string]string{}}

	if params, ok := cfgMap["params"].(map[string]any); ok {
		for k, v := range params {
			cfg.Params[k] = fmt.Sprint(v)
		}
	}
	if n, ok := intValue(cfgMap["max_open_conns"]); ok && n > 0 {
		cfg.MaxOpenConns = n
	}

	switch driver {
	case DriverSQLite:
		if path, ok := cfgMap["path"].(string); ok && path != "" {
			cfg.Path = path
		} else if database, ok := cfgMap["database"].(string); ok && database != "" {
			cfg.Path = database
		} else {
			return nil, fmt.Errorf("path is required")
		}
		return cfg, nil

	case DriverMySQL:
		cfg.Port = 3306
		if host, ok := cfgMap["host"].(string); ok && host != "" {
			cfg.Host = host
		} else {
			return nil, fmt.Errorf("host is required")
		}
		if port, ok := intValue(cfgMap["port"]); ok {
			cfg.Port = port
		}
		if user, ok := cfgMap["user"].(string); ok {
			cfg.User = user
		} else {
			return nil, fmt.Errorf("user is required")
		}
		cfg.Password, _ = cfgMap["password"].(string)
		if database, ok := cfgMap["database"].(string); ok && database != "" {
			cfg.Database = database
		} else {
			return nil, fmt.Errorf("database is required")
		}
		return cfg, nil
	}

	return nil, fmt.Errorf("unsupported driver: %s", driver)
}

// DSN returns the driver-specific data source name.
func (c *Config) DSN() string {
	if c.Driver == DriverSQLite {
		q := url.Values{}
		q.Set("_foreign_keys", "on")
		q.Set("_busy_timeout", "5000")
		for k, v := range c.Params {
			q.Set(k, v)
		}
		return "file:" + c.Path + "?" + q.Encode()
	}

	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.Database
	mc.ParseTime = true
	if len(c.Params) > 0 {
		mc.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
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
