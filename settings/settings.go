// Package settings loads the immutable configuration bundle every
// keyserver component is constructed with. There is no package-level
// mutable state here: Load returns a value, and that value is threaded
// explicitly into each constructor by the caller.
package settings

import (
	"fmt"
	"os"
	"time"

	"github.com/gcash/bchd/chaincfg"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// BitcoinRPC holds the connection details for the chain node's JSON-RPC
// and ZMQ endpoints.
type BitcoinRPC struct {
	Address    string `yaml:"address" validate:"required"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	ZMQAddress string `yaml:"zmq_address" validate:"required"`
}

// Limits holds request-size enforcement knobs.
type Limits struct {
	MetadataSize int64 `yaml:"metadata_size" validate:"gt=0"`
}

// Payments holds BIP70 invoice/settlement knobs.
type Payments struct {
	Timeout  time.Duration `yaml:"timeout" validate:"required"`
	TokenFee int64         `yaml:"token_fee" validate:"gte=0"`
	Memo     string        `yaml:"memo"`
}

// Peering holds the gossip layer's knobs.
type Peering struct {
	Enabled        bool          `yaml:"enabled"`
	OwnURL         string        `yaml:"own_url"`
	MaxPeers       int           `yaml:"max_peers" validate:"gte=0"`
	Timeout        time.Duration `yaml:"timeout" validate:"required_if=Enabled true"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	Peers          []string      `yaml:"peers"`
	PullFanSize    int           `yaml:"pull_fan_size" validate:"gte=0"`
	PushFanSize    int           `yaml:"push_fan_size" validate:"gte=0"`
	BroadcastDelay int           `yaml:"broadcast_delay" validate:"gte=1"`
}

// Settings is the complete, validated configuration bundle for a
// keyserver instance.
type Settings struct {
	Bind    string     `yaml:"bind" validate:"required"`
	DBPath  string     `yaml:"db_path" validate:"required"`
	Network string     `yaml:"network" validate:"required,oneof=mainnet testnet regtest"`
	Bitcoin BitcoinRPC `yaml:"bitcoin_rpc" validate:"required"`
	Limits  Limits     `yaml:"limits"`
	Payment Payments   `yaml:"payments"`
	Peering Peering    `yaml:"peering"`
}

// ChainParams resolves the configured network name to the corresponding
// chaincfg.Params, used by the address codec.
func (s Settings) ChainParams() (*chaincfg.Params, error) {
	switch s.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("settings: unrecognized network %q", s.Network)
	}
}

// WireNetwork resolves the configured network name to the short form
// PaymentDetails.network uses on the wire ("main"/"test"/"regtest"),
// distinct from the config's own "mainnet"/"testnet"/"regtest" spelling.
func (s Settings) WireNetwork() (string, error) {
	switch s.Network {
	case "mainnet":
		return "main", nil
	case "testnet":
		return "test", nil
	case "regtest":
		return "regtest", nil
	default:
		return "", fmt.Errorf("settings: unrecognized network %q", s.Network)
	}
}

// Load reads a YAML configuration file, applies environment overrides,
// and validates the result.
func Load(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("settings: could not read config file: %w", err)
	}

	var s Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("settings: could not parse config file: %w", err)
	}

	applyEnvOverrides(&s)

	if err := validator.New().Struct(&s); err != nil {
		return nil, fmt.Errorf("settings: invalid configuration: %w", err)
	}

	return &s, nil
}

// applyEnvOverrides lets the handful of fields that typically differ
// between deployments (endpoints, credentials) be overridden without
// editing the checked-in config file.
func applyEnvOverrides(s *Settings) {
	overrideString("KEYSERVER_BIND", &s.Bind)
	overrideString("KEYSERVER_DB_PATH", &s.DBPath)
	overrideString("KEYSERVER_NETWORK", &s.Network)
	overrideString("KEYSERVER_BITCOIN_RPC_ADDRESS", &s.Bitcoin.Address)
	overrideString("KEYSERVER_BITCOIN_RPC_USERNAME", &s.Bitcoin.Username)
	overrideString("KEYSERVER_BITCOIN_RPC_PASSWORD", &s.Bitcoin.Password)
	overrideString("KEYSERVER_BITCOIN_ZMQ_ADDRESS", &s.Bitcoin.ZMQAddress)
	overrideString("KEYSERVER_PEERING_OWN_URL", &s.Peering.OwnURL)
}

func overrideString(env string, dst *string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}
