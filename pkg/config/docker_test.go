package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveHostForDocker(t *testing.T) {
	tests := []struct {
		host     string
		inDocker bool
		want     string
	}{
		{"localhost", true, "host.docker.internal"},
		{"127.0.0.1", true, "host.docker.internal"},
		{"localhost", false, "localhost"},
		{"mydb.example.com", true, "mydb.example.com"},
		{"192.168.1.100", true, "192.168.1.100"},
		{"", true, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveHostForDocker(tt.host, tt.inDocker), "host=%q inDocker=%v", tt.host, tt.inDocker)
	}
}

func TestResolveDockerHosts(t *testing.T) {
	newConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{Host: "localhost"},
			Redis:    RedisConfig{Host: "cache.internal"},
			Datasources: []DatasourceConfig{
				{ID: "shop", Config: map[string]any{"host": "127.0.0.1", "port": 5432}},
				{ID: "local", Config: map[string]any{"path": "/data/local.db"}},
			},
		}
	}

	cfg := newConfig()
	cfg.resolveDockerHosts(true)
	assert.Equal(t, "host.docker.internal", cfg.Database.Host)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, "host.docker.internal", cfg.Datasources[0].Config["host"])
	assert.NotContains(t, cfg.Datasources[1].Config, "host")

	cfg = newConfig()
	cfg.resolveDockerHosts(false)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "127.0.0.1", cfg.Datasources[0].Config["host"])
}
