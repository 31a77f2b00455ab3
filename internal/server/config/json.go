package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/bridgex/internal/flagx"
	"github.com/dmitrijs2005/bridgex/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations
// accept "5m" style strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	LogLevel                    string         `json:"log_level"`
	DatabaseDriver              string         `json:"database_driver"`
	DatabaseDSN                 string         `json:"database_dsn"`
	StagingDir                  string         `json:"staging_dir"`
	ArtifactBackend             string         `json:"artifact_backend"`
	ArtifactDir                 string         `json:"artifact_dir"`
	SecretKey                   string         `json:"secret_key"`
	DeviceTokenValidityDuration timex.Duration `json:"device_token_validity_duration"`
	URIScheme                   string         `json:"uri_scheme"`
	MaxChunkSize                int64          `json:"max_chunk_size"`
	MaxFileSize                 int64          `json:"max_file_size"`
	StaleTransferTTL            timex.Duration `json:"stale_transfer_ttl"`
	SweepInterval               timex.Duration `json:"sweep_interval"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
}

// parseJson overlays the JSON file named by -c/-config onto config. Keys
// missing from the file leave the current value untouched. An unreadable
// or malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.DatabaseDriver, c.DatabaseDriver)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StagingDir, c.StagingDir)
	setString(&config.ArtifactBackend, c.ArtifactBackend)
	setString(&config.ArtifactDir, c.ArtifactDir)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.URIScheme, c.URIScheme)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.DeviceTokenValidityDuration.Duration != 0 {
		config.DeviceTokenValidityDuration = c.DeviceTokenValidityDuration.Duration
	}
	if c.StaleTransferTTL.Duration != 0 {
		config.StaleTransferTTL = c.StaleTransferTTL.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.MaxChunkSize != 0 {
		config.MaxChunkSize = c.MaxChunkSize
	}
	if c.MaxFileSize != 0 {
		config.MaxFileSize = c.MaxFileSize
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
