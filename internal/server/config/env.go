package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "BRIDGEX_"

// envFiles are loaded into the process environment before variables are
// read. Existing variables are not overridden.
var envFiles = []string{".env"}

// parseEnv overlays BRIDGEX_* environment variables onto config, after
// loading any .env file present in the working directory. Variable names
// are the prefix plus the suffixes used below, e.g. BRIDGEX_GRPC_ADDR or
// BRIDGEX_STALE_TRANSFER_TTL. Malformed numbers or durations panic.
func parseEnv(config *Config) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			panic(err)
		}
	}

	envString(&config.EndpointAddrGRPC, "GRPC_ADDR")
	envString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	envString(&config.LogLevel, "LOG_LEVEL")
	envString(&config.DatabaseDriver, "DB_DRIVER")
	envString(&config.DatabaseDSN, "DATABASE_DSN")
	envString(&config.StagingDir, "STAGING_DIR")
	envString(&config.ArtifactBackend, "ARTIFACT_BACKEND")
	envString(&config.ArtifactDir, "ARTIFACT_DIR")
	envString(&config.SecretKey, "SECRET_KEY")
	envString(&config.URIScheme, "URI_SCHEME")
	envString(&config.S3RootUser, "S3_ROOT_USER")
	envString(&config.S3RootPassword, "S3_ROOT_PASSWORD")
	envString(&config.S3Bucket, "S3_BUCKET")
	envString(&config.S3Region, "S3_REGION")
	envString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")

	envDuration(&config.DeviceTokenValidityDuration, "TOKEN_VALIDITY")
	envDuration(&config.StaleTransferTTL, "STALE_TRANSFER_TTL")
	envDuration(&config.SweepInterval, "SWEEP_INTERVAL")
	envInt64(&config.MaxChunkSize, "MAX_CHUNK_SIZE")
	envInt64(&config.MaxFileSize, "MAX_FILE_SIZE")
}

func envString(dst *string, name string) {
	if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
		*dst = v
	}
}

func envDuration(dst *time.Duration, name string) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func envInt64(dst *int64, name string) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(err)
	}
	*dst = n
}
