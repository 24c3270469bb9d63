// Package config loads the relayer configuration from a YAML file with
// secrets overridable from the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

const (
	// EnvDatabaseDSN overrides database.dsn.
	EnvDatabaseDSN = "RELAYER_DATABASE_DSN"
	// EnvRedisPassword overrides redis.password.
	EnvRedisPassword = "RELAYER_REDIS_PASSWORD"
	// envPrefix prefixes the per-chain private key variables, RELAYER_<CHAIN>_PRIVATE_KEY.
	envPrefix = "RELAYER_"

	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultRedisNamespace    = "relayer"
	defaultSubmitTimeout     = 5 * time.Minute
	defaultEventBuffer       = 256
	defaultNotifierQueue     = 256
	defaultNotifierWrite     = 10 * time.Second
	defaultFailedActionBatch = 100
)

// Config is the relayer configuration.
type Config struct {
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // "text" | "json"
	Database  DatabaseConfig `yaml:"database"`
	Redis     RedisConfig    `yaml:"redis"`
	Notifier  NotifierConfig `yaml:"notifier"`
	Relay     RelayConfig    `yaml:"relay"`
	Chains    []ChainConfig  `yaml:"chains"`
}

// DatabaseConfig points at the Postgres database holding chain configuration,
// NFT metadata and failed actions.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig points at the checkpoint store. An empty Addr disables checkpoints.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// NotifierConfig configures the outbound notification socket. An empty URL
// makes the relay log notifications instead.
type NotifierConfig struct {
	URL          string        `yaml:"url"`
	QueueSize    int           `yaml:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RelayConfig tunes the dispatcher.
type RelayConfig struct {
	SubmitTimeout     time.Duration `yaml:"submit_timeout"`
	EventBuffer       int           `yaml:"event_buffer"`
	FailedActionBatch int           `yaml:"failed_action_batch"`
}

// ChainConfig is one chain entry of the file.
type ChainConfig struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Nonce         uint32 `yaml:"nonce"`
	ChainID       uint64 `yaml:"chain_id"`
	RpcUrl        string `yaml:"rpc_url"`
	WsUrl         string `yaml:"ws_url"`
	TxType        uint64 `yaml:"tx_type"`
	PrivateKey    string `yaml:"private_key"`
	BridgeAddress string `yaml:"bridge_address"`
	StartBlock    uint64 `yaml:"start_block"`
}

// Load reads the file at path, applies environment overrides and defaults
// and validates the result.
//
// Parameters:
// - path: the YAML file.
//
// Returns:
// - *Config: the configuration.
// - error: an error if the file cannot be read or parsed, or the configuration is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes data and resolves overrides through lookup.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, err.Error())
	}

	cfg.applyEnv(lookup)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if dsn, ok := lookup(EnvDatabaseDSN); ok {
		c.Database.DSN = dsn
	}
	if password, ok := lookup(EnvRedisPassword); ok {
		c.Redis.Password = password
	}
	for i := range c.Chains {
		if key, ok := lookup(PrivateKeyEnv(c.Chains[i].Name)); ok {
			c.Chains[i].PrivateKey = key
		}
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.Redis.Namespace == "" {
		c.Redis.Namespace = defaultRedisNamespace
	}
	if c.Notifier.QueueSize <= 0 {
		c.Notifier.QueueSize = defaultNotifierQueue
	}
	if c.Notifier.WriteTimeout <= 0 {
		c.Notifier.WriteTimeout = defaultNotifierWrite
	}
	if c.Relay.SubmitTimeout <= 0 {
		c.Relay.SubmitTimeout = defaultSubmitTimeout
	}
	if c.Relay.EventBuffer <= 0 {
		c.Relay.EventBuffer = defaultEventBuffer
	}
	if c.Relay.FailedActionBatch <= 0 {
		c.Relay.FailedActionBatch = defaultFailedActionBatch
	}
}

// Validate checks the configuration. Chain entries may be empty when the
// chains are loaded from the database.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "log level %q", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.Wrapf(commonerrors.ErrInvalidConfig, "log format %q", c.LogFormat)
	}

	seen := make(map[uint32]string, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.Name == "" {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chain with nonce %d has no name", chain.Nonce)
		}
		if types.ParseChainType(chain.Type) == types.UNKNOWN {
			return errors.Wrapf(commonerrors.ErrInvalidChainType, "chain %s: %q", chain.Name, chain.Type)
		}
		if chain.RpcUrl == "" {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chain %s has no rpc_url", chain.Name)
		}
		if chain.BridgeAddress == "" {
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "chain %s has no bridge_address", chain.Name)
		}
		if other, ok := seen[chain.Nonce]; ok {
			return errors.Wrapf(commonerrors.ErrDuplicateChainNonce, "nonce %d used by %s and %s", chain.Nonce, other, chain.Name)
		}
		seen[chain.Nonce] = chain.Name
	}
	return nil
}

// ChainConfigs converts the chain entries into adapter configurations.
func (c *Config) ChainConfigs() []*types.ChainConfig {
	configs := make([]*types.ChainConfig, 0, len(c.Chains))
	for _, chain := range c.Chains {
		configs = append(configs, &types.ChainConfig{
			Name:          chain.Name,
			ChainType:     types.ParseChainType(chain.Type),
			Nonce:         types.ChainNonce(chain.Nonce),
			ChainID:       chain.ChainID,
			RpcUrl:        chain.RpcUrl,
			WsUrl:         chain.WsUrl,
			TxType:        chain.TxType,
			PrivateKey:    chain.PrivateKey,
			BridgeAddress: chain.BridgeAddress,
			StartBlock:    chain.StartBlock,
		})
	}
	return configs
}

// ApplyPrivateKeys fills the private keys of chains loaded from the database,
// which never stores them, from RELAYER_<CHAIN>_PRIVATE_KEY.
func ApplyPrivateKeys(configs []*types.ChainConfig, lookup func(string) (string, bool)) {
	for _, config := range configs {
		if key, ok := lookup(PrivateKeyEnv(config.Name)); ok {
			config.PrivateKey = key
		}
	}
}

// PrivateKeyEnv returns the variable holding the private key of chain name.
// Characters other than letters and digits become underscores.
func PrivateKeyEnv(name string) string {
	normalized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return envPrefix + normalized + "_PRIVATE_KEY"
}

// NewLogger creates the process logger.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "log level %q", c.LogLevel)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
