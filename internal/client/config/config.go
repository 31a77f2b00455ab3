package config

import "time"

// Config holds runtime settings for the bridgex sender CLI.
//
// ChunkSize is the payload size of each uploaded chunk in bytes. Parallelism
// caps the number of chunks in flight at once.
type Config struct {
	ServerEndpointAddr  string
	DatabaseDSN         string
	DeviceName          string
	LogLevel            string
	ChunkSize           int64
	Parallelism         int
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabaseDSN = "bridgex-client.db"
	c.DeviceName = "bridgex-cli"
	c.LogLevel = "warn"
	c.ChunkSize = 256 * 1024
	c.Parallelism = 4
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
