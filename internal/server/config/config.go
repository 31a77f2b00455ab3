// Package config handles configuration for the server component: defaults,
// an optional JSON file, .env and BRIDGEX_* environment variables, and
// command-line flags, applied in that order.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds runtime settings for the BridgeX companion server.
type Config struct {
	EndpointAddrGRPC string
	// EndpointAddrHTTP serves health, status, metrics and QR images. Empty
	// disables the listener.
	EndpointAddrHTTP string
	LogLevel         string

	// DatabaseDriver is "sqlite" or "pgx".
	DatabaseDriver string
	DatabaseDSN    string

	StagingDir string
	// ArtifactBackend is "local" (files under ArtifactDir) or "s3".
	ArtifactBackend string
	ArtifactDir     string

	// SecretKey signs device access tokens (HS256).
	SecretKey                   string
	DeviceTokenValidityDuration time.Duration
	URIScheme                   string

	MaxChunkSize     int64
	MaxFileSize      int64
	StaleTransferTTL time.Duration
	SweepInterval    time.Duration

	S3RootUser     string
	S3RootPassword string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
}

// LoadDefaults populates Config with development defaults: a local SQLite
// database and artifact directory under ./data.
// SecretKey is left empty; the server then signs tokens with a random
// per-process key, which matches the lifetime of the in-memory keyring.
func (c *Config) LoadDefaults() {
	c.EndpointAddrGRPC = ":50051"
	c.EndpointAddrHTTP = ":8080"
	c.LogLevel = "info"
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = "file:data/bridgex.db?_pragma=busy_timeout(5000)"
	c.StagingDir = "data/staging"
	c.ArtifactBackend = "local"
	c.ArtifactDir = "data/files"
	c.DeviceTokenValidityDuration = 24 * time.Hour
	c.URIScheme = "bridgex"
	c.MaxChunkSize = 4 << 20
	c.MaxFileSize = 4 << 30
	c.StaleTransferTTL = 24 * time.Hour
	c.SweepInterval = 10 * time.Minute
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "bridgex"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.DatabaseDriver))
	}
	switch c.ArtifactBackend {
	case "local":
		if c.ArtifactDir == "" {
			errs = append(errs, errors.New("artifact dir is required for the local backend"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported artifact backend %q", c.ArtifactBackend))
	}
	if c.EndpointAddrGRPC == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if c.StagingDir == "" {
		errs = append(errs, errors.New("staging dir is required"))
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("secret key is required"))
	}
	if c.DeviceTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("device token validity must be positive"))
	}
	if c.URIScheme == "" {
		errs = append(errs, errors.New("uri scheme is required"))
	}
	if c.MaxChunkSize <= 0 || c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("max chunk and file size must be positive"))
	}
	if c.SweepInterval <= 0 || c.StaleTransferTTL <= 0 {
		errs = append(errs, errors.New("sweep interval and stale transfer ttl must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
