package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
bind: "0.0.0.0:8080"
db_path: "/var/lib/keyserver"
network: "mainnet"
bitcoin_rpc:
  address: "http://127.0.0.1:8332"
  username: "rpcuser"
  password: "rpcpass"
  zmq_address: "tcp://127.0.0.1:28332"
limits:
  metadata_size: 65536
payments:
  timeout: "30s"
  token_fee: 1000
  memo: "thanks for registering"
peering:
  enabled: true
  max_peers: 50
  timeout: "5s"
  keep_alive: "30s"
  peers: ["https://peer-a.example"]
  pull_fan_size: 3
  push_fan_size: 5
  broadcast_delay: 6
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, validConfig)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", s.Bind)
	assert.Equal(t, "mainnet", s.Network)
	assert.Equal(t, 6, s.Peering.BroadcastDelay)

	params, err := s.ChainParams()
	require.NoError(t, err)
	assert.NotNil(t, params)

	wire, err := s.WireNetwork()
	require.NoError(t, err)
	assert.Equal(t, "main", wire)
}

func TestLoad_MissingRequiredField(t *testing.T) {
	path := writeConfig(t, `
db_path: "/var/lib/keyserver"
network: "mainnet"
bitcoin_rpc:
  address: "http://127.0.0.1:8332"
  zmq_address: "tcp://127.0.0.1:28332"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidNetwork(t *testing.T) {
	path := writeConfig(t, `
bind: "0.0.0.0:8080"
db_path: "/var/lib/keyserver"
network: "notanetwork"
bitcoin_rpc:
  address: "http://127.0.0.1:8332"
  zmq_address: "tcp://127.0.0.1:28332"
limits:
  metadata_size: 65536
payments:
  timeout: "30s"
peering:
  broadcast_delay: 6
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, validConfig)
	t.Setenv("KEYSERVER_BIND", "127.0.0.1:9090")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", s.Bind)
}
