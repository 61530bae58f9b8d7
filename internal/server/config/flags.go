package config

import (
	"flag"
	"os"
	"time"

	"github.com/dsemenov/datavault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-l string   ledger backend ("arweave" or "s3")
//	-g string   Arweave gateway base URL
//	-t int      ledger call timeout, seconds
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-r string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w string   store reward amount (decimal, "" disables)
//
// Args are first filtered with flagx.FilterArgs so flags owned by other
// components are ignored.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-l", "-g", "-t", "-u", "-p", "-b", "-r", "-e", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.LedgerBackend, "l", config.LedgerBackend, "ledger backend (arweave|s3)")
	fs.StringVar(&config.LedgerGatewayURL, "g", config.LedgerGatewayURL, "arweave gateway base URL")

	ledgerTimeout := fs.Int("t", int(config.LedgerTimeout.Seconds()), "ledger call timeout (in seconds)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.StoreRewardAmount, "w", config.StoreRewardAmount, "store reward amount")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.LedgerTimeout = time.Duration(*ledgerTimeout) * time.Second
}
