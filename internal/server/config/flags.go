package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-l string   HTTP bind address for health, metrics and QR images
//	-d string   database DSN
//	-driver     database driver: sqlite or pgx
//	-staging    chunk staging directory
//	-artifacts  artifact backend: local or s3
//	-o string   local artifact directory
//	-s string   device token HMAC secret
//	-t int      device token validity, minutes
//	-u/-p/-b/-g/-e  S3 user, password, bucket, region, endpoint
//
// os.Args is filtered with flagx.FilterArgs first so the -c/-config flag
// read by parseJson does not trip this flag set.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-l", "-d", "-driver", "-staging", "-artifacts", "-o", "-s", "-t",
		"-u", "-p", "-b", "-g", "-e",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.EndpointAddrHTTP, "l", config.EndpointAddrHTTP, "address and port for the HTTP side listener")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.DatabaseDriver, "driver", config.DatabaseDriver, "database driver (sqlite|pgx)")
	fs.StringVar(&config.StagingDir, "staging", config.StagingDir, "chunk staging directory")
	fs.StringVar(&config.ArtifactBackend, "artifacts", config.ArtifactBackend, "artifact backend (local|s3)")
	fs.StringVar(&config.ArtifactDir, "o", config.ArtifactDir, "local artifact directory")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.DeviceTokenValidityDuration.Minutes()), "device token validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.DeviceTokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
		}
	})
}
