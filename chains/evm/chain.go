package evm

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/chainmanager"
	"github.com/ClipFinance/bridge-relay/chains/evm/generated"
	"github.com/ClipFinance/bridge-relay/chains/evm/handler"
	"github.com/ClipFinance/bridge-relay/chains/evm/signer"
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
	"github.com/ClipFinance/bridge-relay/connectionmonitor"
	"github.com/ClipFinance/bridge-relay/submission"
)

const (
	// TxTypeLegacy represents the legacy transaction type.
	TxTypeLegacy = 0
	// TxTypeEIP1559 represents the EIP-1559 transaction type.
	TxTypeEIP1559 = 2
	// defaultSettleDelay is the pause before a broadcast transaction is looked up again.
	defaultSettleDelay = 3 * time.Second
)

// ethClient is the subset of *ethclient.Client used by the chain.
type ethClient interface {
	handler.Client
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
	Close()
}

// Option configures an EVM chain.
type Option func(*evm)

// WithCheckpointer makes the event stream resume from stored block checkpoints.
func WithCheckpointer(store handler.Checkpointer) Option {
	return func(e *evm) { e.checkpoints = store }
}

// WithSubmissionOptions overrides the retry settings of the submission protocol.
func WithSubmissionOptions(opts ...submission.Option) Option {
	return func(e *evm) { e.submitOpts = append(e.submitOpts, opts...) }
}

// WithSettleDelay sets how long after broadcast a transaction is checked for displacement.
// Zero disables the check.
func WithSettleDelay(delay time.Duration) Option {
	return func(e *evm) { e.settleDelay = delay }
}

// evm represents the base EVM chain implementation.
type evm struct {
	config      *types.ChainConfig   // Chain configuration.
	logger      *logrus.Logger       // Logger for logging events.
	bridgeABI   abi.ABI              // Parsed bridge contract ABI.
	bridge      common.Address       // Bridge contract address.
	checkpoints handler.Checkpointer // Optional block checkpoint store.
	settleDelay time.Duration        // Delay before the displacement check.
	submitOpts  []submission.Option  // Submission protocol settings.

	// Protected fields with their own mutexes.
	clientMutex sync.RWMutex // Mutex for client.
	client      ethClient    // Ethereum client.

	signerMutex sync.RWMutex  // Mutex for signer.
	signer      signer.Signer // Signer for signing transactions.

	protocol *submission.Protocol[txTemplate, uint64] // Nonce-safe submission.

	eventHandlerMutex sync.RWMutex          // Mutex for event handler.
	eventHandler      *handler.EventHandler // Event handler for bridge logs.

	monitorMutex sync.RWMutex                        // Mutex for connection monitor.
	monitor      connectionmonitor.ConnectionMonitor // Connection monitor.
}

// NewEvmChain creates a new EVM chain implementation.
//
// Parameters:
// - ctx: the context for managing the request.
// - config: the chain configuration.
// - logger: the logger for logging events.
// - opts: optional settings.
//
// Returns:
// - types.Chain: a new EVM chain instance.
// - error: an error if any issue occurs during creation.
func NewEvmChain(ctx context.Context, config *types.ChainConfig, logger *logrus.Logger, opts ...Option) (types.Chain, error) {
	if !common.IsHexAddress(config.BridgeAddress) {
		return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "bridge address %q of %s", config.BridgeAddress, config.Name)
	}

	client, err := ethclient.DialContext(ctx, endpoint(config))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create client")
	}

	chain, err := newEvm(config, logger, client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}

	if err := chain.initMonitor(ctx); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	builder := chainmanager.NewChainBuilder(config).
		WithEventHandler(chain).
		WithEventDecoder(chain)

	if config.PrivateKey != "" {
		s, err := signer.NewSignerFromHex(config.PrivateKey)
		if err != nil {
			chain.Close()
			return nil, errors.Wrap(err, "failed to create signer")
		}
		chain.setSigner(s)
		builder.WithEventSubmitter(chain)

		logger.WithFields(logrus.Fields{
			"chain":   config.Name,
			"relayer": s.Address().Hex(),
		}).Info("EVM submitter configured")
	}

	return builder.Build(), nil
}

// newEvm assembles the chain around an already connected client.
func newEvm(config *types.ChainConfig, logger *logrus.Logger, client ethClient, opts ...Option) (*evm, error) {
	bridgeABI, err := generated.ParseBridgeABI()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse bridge ABI")
	}

	chain := &evm{
		config:      config,
		logger:      logger,
		bridgeABI:   bridgeABI,
		bridge:      common.HexToAddress(config.BridgeAddress),
		settleDelay: defaultSettleDelay,
		client:      client,
	}
	for _, opt := range opts {
		opt(chain)
	}

	return chain, nil
}

// setSigner installs the relayer key and the submission protocol bound to its account.
func (e *evm) setSigner(s signer.Signer) {
	e.signerMutex.Lock()
	defer e.signerMutex.Unlock()

	e.signer = s

	opts := append([]submission.Option{}, e.submitOpts...)
	if e.settleDelay > 0 {
		opts = append([]submission.Option{submission.WithSettle(e.settleDelay, e.settle)}, opts...)
	}

	tracker := submission.NewSequenceTracker(func(ctx context.Context) (uint64, error) {
		client, err := e.getClient()
		if err != nil {
			return 0, err
		}
		return client.PendingNonceAt(ctx, s.Address())
	})
	e.protocol = submission.NewProtocol[txTemplate, uint64](e.config.Name, e.logger, tracker, e.send, isStaleNonce, opts...)
}

// Identity returns the chain identity.
func (e *evm) Identity() types.ChainIdentity {
	return e.config.Identity()
}

// Close should be called when the chain is no longer needed.
// It stops the connection monitor, closes the client, and stops the event handler.
func (e *evm) Close() {
	e.monitorMutex.Lock()
	if e.monitor != nil {
		e.monitor.Stop()
	}
	e.monitorMutex.Unlock()

	e.eventHandlerMutex.Lock()
	if e.eventHandler != nil {
		e.eventHandler.Stop()
		e.eventHandler = nil
	}
	e.eventHandlerMutex.Unlock()

	e.clientMutex.Lock()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	e.clientMutex.Unlock()
}

// getClient returns the Ethereum client.
func (e *evm) getClient() (ethClient, error) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	if e.client == nil {
		return nil, commonerrors.ErrClientNotReady
	}
	return e.client, nil
}

// getSigner returns the signer and its submission protocol.
func (e *evm) getSigner() (signer.Signer, *submission.Protocol[txTemplate, uint64], error) {
	e.signerMutex.RLock()
	defer e.signerMutex.RUnlock()

	if e.signer == nil {
		return nil, nil, errors.Wrap(commonerrors.ErrClientNotReady, "signer not configured")
	}
	return e.signer, e.protocol, nil
}

// endpoint returns the URL the client connects to: the websocket URL when configured.
func endpoint(config *types.ChainConfig) string {
	if config.WsUrl != "" {
		return config.WsUrl
	}
	return config.RpcUrl
}
