package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

const sample = `
log_level: debug
database:
  dsn: postgres://relayer@localhost/relayer?sslmode=disable
redis:
  addr: localhost:6379
notifier:
  url: ws://localhost:9000/events
relay:
  submit_timeout: 90s
chains:
  - name: ethereum
    type: evm
    nonce: 1
    chain_id: 1
    rpc_url: https://eth.example
    tx_type: 2
    bridge_address: "0x00000000000000000000000000000000000000B1"
  - name: solana-mainnet
    type: SOLANA
    nonce: 2
    rpc_url: https://sol.example
    ws_url: wss://sol.example
    bridge_address: BridgeProgram111111111111111111111111111111
    start_block: 250000000
`

func noEnv(string) (string, bool) { return "", false }

func envOf(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample), noEnv)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "relayer", cfg.Redis.Namespace)
	assert.Equal(t, 90*time.Second, cfg.Relay.SubmitTimeout)
	assert.Equal(t, defaultEventBuffer, cfg.Relay.EventBuffer)
	assert.Equal(t, defaultNotifierWrite, cfg.Notifier.WriteTimeout)

	chains := cfg.ChainConfigs()
	require.Len(t, chains, 2)
	assert.Equal(t, &types.ChainConfig{
		Name:          "ethereum",
		ChainType:     types.EVM,
		Nonce:         1,
		ChainID:       1,
		RpcUrl:        "https://eth.example",
		TxType:        2,
		BridgeAddress: "0x00000000000000000000000000000000000000B1",
	}, chains[0])
	assert.Equal(t, types.SOLANA, chains[1].ChainType)
	assert.Equal(t, "wss://sol.example", chains[1].WsUrl)
	assert.Equal(t, uint64(250000000), chains[1].StartBlock)
}

func TestParseAppliesEnvironment(t *testing.T) {
	cfg, err := Parse([]byte(sample), envOf(map[string]string{
		EnvDatabaseDSN:                       "postgres://secret@db/relayer",
		EnvRedisPassword:                     "hunter2",
		"RELAYER_ETHEREUM_PRIVATE_KEY":       "0xkey",
		"RELAYER_SOLANA_MAINNET_PRIVATE_KEY": "base58key",
	}))
	require.NoError(t, err)

	assert.Equal(t, "postgres://secret@db/relayer", cfg.Database.DSN)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "0xkey", cfg.Chains[0].PrivateKey)
	assert.Equal(t, "base58key", cfg.Chains[1].PrivateKey)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "malformed yaml",
			yaml: "chains: [",
			want: commonerrors.ErrInvalidConfig,
		},
		{
			name: "log level",
			yaml: "log_level: loud",
			want: commonerrors.ErrInvalidConfig,
		},
		{
			name: "log format",
			yaml: "log_format: xml",
			want: commonerrors.ErrInvalidConfig,
		},
		{
			name: "chain type",
			yaml: "chains: [{name: a, type: cosmos, nonce: 1, rpc_url: x, bridge_address: y}]",
			want: commonerrors.ErrInvalidChainType,
		},
		{
			name: "missing rpc",
			yaml: "chains: [{name: a, type: evm, nonce: 1, bridge_address: y}]",
			want: commonerrors.ErrInvalidConfig,
		},
		{
			name: "missing bridge",
			yaml: "chains: [{name: a, type: evm, nonce: 1, rpc_url: x}]",
			want: commonerrors.ErrInvalidConfig,
		},
		{
			name: "duplicate nonce",
			yaml: `chains:
  - {name: a, type: evm, nonce: 1, rpc_url: x, bridge_address: y}
  - {name: b, type: solana, nonce: 1, rpc_url: x, bridge_address: y}`,
			want: commonerrors.ErrDuplicateChainNonce,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), noEnv)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), err.Error())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Chains, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPrivateKeyEnv(t *testing.T) {
	assert.Equal(t, "RELAYER_ETHEREUM_PRIVATE_KEY", PrivateKeyEnv("ethereum"))
	assert.Equal(t, "RELAYER_BSC_TESTNET_PRIVATE_KEY", PrivateKeyEnv("bsc-testnet"))
	assert.Equal(t, "RELAYER_SOLANA2_PRIVATE_KEY", PrivateKeyEnv("Solana2"))
}

func TestApplyPrivateKeys(t *testing.T) {
	configs := []*types.ChainConfig{{Name: "ethereum"}, {Name: "base"}}
	ApplyPrivateKeys(configs, envOf(map[string]string{"RELAYER_BASE_PRIVATE_KEY": "0xbase"}))

	assert.Empty(t, configs[0].PrivateKey)
	assert.Equal(t, "0xbase", configs[1].PrivateKey)
}

func TestNewLogger(t *testing.T) {
	cfg, err := Parse([]byte("log_level: warn\nlog_format: json"), noEnv)
	require.NoError(t, err)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
