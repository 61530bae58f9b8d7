package config

import (
	"encoding/json"
	"os"

	"github.com/dsemenov/datavault/internal/flagx"
	"github.com/dsemenov/datavault/internal/timex"
)

// JsonConfig is the intermediate DTO for reading JSON configuration files.
// Duration fields accept both string values such as "30s" and integer
// nanoseconds; after unmarshalling the values are copied into the runtime
// Config.
type JsonConfig struct {
	EndpointAddr      string         `json:"endpoint_addr"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	LedgerBackend     string         `json:"ledger_backend"`
	LedgerGatewayURL  string         `json:"ledger_gateway_url"`
	LedgerTimeout     timex.Duration `json:"ledger_timeout"`
	S3RootUser        string         `json:"s3_root_user"`
	S3RootPassword    string         `json:"s3_root_password"`
	S3Bucket          string         `json:"s3_bucket"`
	S3Region          string         `json:"s3_region"`
	S3BaseEndpoint    string         `json:"s3_base_endpoint"`
	StoreRewardAmount string         `json:"store_reward_amount"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. If no file is named, nothing
// is loaded; an unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.EndpointAddr = c.EndpointAddr
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.LedgerBackend = c.LedgerBackend
	config.LedgerGatewayURL = c.LedgerGatewayURL
	config.LedgerTimeout = c.LedgerTimeout.Duration
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.StoreRewardAmount = c.StoreRewardAmount
}
