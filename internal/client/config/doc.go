// Package config loads runtime configuration for the bridgex sender CLI.
//
// Sources, in increasing precedence:
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags.
//
// Example JSON:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "database_dsn": "bridgex-client.db",
//	  "chunk_size": 262144,
//	  "online_check_interval": "3s"
//	}
package config
