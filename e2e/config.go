package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the scenarios at a running relay. They are skipped when
// RELAY_ADDR is unset.
type Config struct {
	RelayAddr string `envconfig:"RELAY_ADDR"`
	GrpcAddr  string `envconfig:"RELAY_GRPC_ADDR"`
	// E2E_DEBUG_JSON dumps every websocket frame and gRPC body
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
