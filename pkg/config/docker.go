package config

import (
	"os"
	"sync"
)

// dockerHostAlias reaches services published on the Docker host.
const dockerHostAlias = "host.docker.internal"

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs inside a Docker
// container, detected by /.dockerenv. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps a loopback host to the Docker host alias when
// inDocker is set, and returns every other host unchanged.
func ResolveHostForDocker(host string, inDocker bool) string {
	if inDocker && (host == "localhost" || host == "127.0.0.1") {
		return dockerHostAlias
	}
	return host
}

// resolveDockerHosts rewrites loopback hosts of the history store, the
// shared cache and every data source whose config carries a "host" string.
func (c *Config) resolveDockerHosts(inDocker bool) {
	if !inDocker {
		return
	}
	c.Database.Host = ResolveHostForDocker(c.Database.Host, true)
	c.Redis.Host = ResolveHostForDocker(c.Redis.Host, true)
	for i := range c.Datasources {
		host, ok := c.Datasources[i].Config["host"].(string)
		if ok {
			c.Datasources[i].Config["host"] = ResolveHostForDocker(host, true)
		}
	}
}
