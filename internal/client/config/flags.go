package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/flagx"
)

// ValuedFlags lists the flags that consume a following argument. Callers use
// it with flagx.Positionals to find the subcommand in os.Args.
var ValuedFlags = []string{"-a", "-d", "-n", "-chunk", "-j", "-log", "-i", "-c", "-config"}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   address and port of the bridge server
//	-d string   local state database DSN
//	-n string   device name announced during pairing
//	-chunk int  chunk size in bytes
//	-j int      parallel chunk uploads
//	-log string log level (debug, info, warn, error)
//	-i int      online check interval in seconds
//
// os.Args is filtered with flagx.FilterArgs so subcommands and the -c/-config
// flag do not interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-n", "-chunk", "-j", "-log", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "local state database DSN")
	fs.StringVar(&cfg.DeviceName, "n", cfg.DeviceName, "device name")
	fs.Int64Var(&cfg.ChunkSize, "chunk", cfg.ChunkSize, "chunk size in bytes")
	fs.IntVar(&cfg.Parallelism, "j", cfg.Parallelism, "parallel chunk uploads")
	fs.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
