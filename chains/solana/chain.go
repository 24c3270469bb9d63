package solana

import (
	"context"
	"sync"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/chainmanager"
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
	"github.com/ClipFinance/bridge-relay/connectionmonitor"
	"github.com/ClipFinance/bridge-relay/submission"
)

const (
	// blockhashMaxAge bounds how long a cached blockhash is reused.
	// Blockhashes expire after roughly 150 slots.
	blockhashMaxAge = 30 * time.Second
	// defaultPollingInterval is the pause between signature polls.
	defaultPollingInterval = 5 * time.Second
)

// rpcClient is the subset of *rpc.Client used by the chain.
type rpcClient interface {
	GetHealth(ctx context.Context) (string, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *sol.Transaction, opts rpc.TransactionOpts) (sol.Signature, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account sol.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, sig sol.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	Close() error
}

// Checkpointer persists the last fully processed slot.
type Checkpointer interface {
	TryLoadLatestBlock(ctx context.Context, chainNonce uint32) (uint64, bool, error)
	StoreBlock(ctx context.Context, chainNonce uint32, block uint64) error
}

// Option configures a Solana chain.
type Option func(*solana)

// WithCheckpointer makes the event stream resume from stored slot checkpoints.
func WithCheckpointer(store Checkpointer) Option {
	return func(s *solana) { s.checkpoints = store }
}

// WithSubmissionOptions overrides the retry settings of the submission protocol.
func WithSubmissionOptions(opts ...submission.Option) Option {
	return func(s *solana) { s.submitOpts = append(s.submitOpts, opts...) }
}

// WithPollingInterval sets the pause between signature polls.
func WithPollingInterval(interval time.Duration) Option {
	return func(s *solana) { s.pollingInterval = interval }
}

// solana represents the Solana bridge program adapter.
type solana struct {
	config          *types.ChainConfig
	logger          *logrus.Logger
	program         sol.PublicKey
	checkpoints     Checkpointer
	submitOpts      []submission.Option
	pollingInterval time.Duration

	// Protected fields with their own mutexes.
	clientMutex sync.RWMutex
	client      rpcClient

	signerMutex sync.RWMutex
	signer      *sol.PrivateKey
	protocol    *submission.Protocol[txTemplate, sol.Hash]

	subscribe         subscribeFunc // Log subscription source, websocket when nil.
	eventHandlerMutex sync.RWMutex
	eventHandler      *eventStream

	monitorMutex sync.RWMutex
	monitor      connectionmonitor.ConnectionMonitor
}

// NewSolanaChain creates a new Solana chain implementation.
//
// Parameters:
// - ctx: the context for managing the request.
// - config: the chain configuration. BridgeAddress holds the bridge program id.
// - logger: the logger for logging events.
// - opts: optional settings.
//
// Returns:
// - types.Chain: a new Solana chain instance.
// - error: an error if the configuration is invalid or the monitor cannot start.
func NewSolanaChain(ctx context.Context, config *types.ChainConfig, logger *logrus.Logger, opts ...Option) (types.Chain, error) {
	chain, err := newSolana(config, logger, rpc.New(config.RpcUrl), opts...)
	if err != nil {
		return nil, err
	}

	if err := chain.initMonitor(ctx); err != nil {
		chain.Close()
		return nil, errors.Wrap(err, "failed to init connection monitor")
	}

	builder := chainmanager.NewChainBuilder(config).
		WithEventHandler(chain).
		WithEventDecoder(chain)

	if config.PrivateKey != "" {
		key, err := sol.PrivateKeyFromBase58(config.PrivateKey)
		if err != nil {
			chain.Close()
			return nil, errors.Wrap(err, "failed to create signer")
		}
		chain.setSigner(key)
		builder.WithEventSubmitter(chain)

		logger.WithFields(logrus.Fields{
			"chain":   config.Name,
			"relayer": key.PublicKey().String(),
		}).Info("Solana submitter configured")
	}

	return builder.Build(), nil
}

// newSolana assembles the chain around an rpc client.
func newSolana(config *types.ChainConfig, logger *logrus.Logger, client rpcClient, opts ...Option) (*solana, error) {
	program, err := sol.PublicKeyFromBase58(config.BridgeAddress)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrInvalidConfig, "bridge program %q of %s", config.BridgeAddress, config.Name)
	}

	chain := &solana{
		config:          config,
		logger:          logger,
		program:         program,
		pollingInterval: defaultPollingInterval,
		client:          client,
	}
	for _, opt := range opts {
		opt(chain)
	}

	return chain, nil
}

// setSigner installs the relayer key and the submission protocol bound to it.
func (s *solana) setSigner(key sol.PrivateKey) {
	s.signerMutex.Lock()
	defer s.signerMutex.Unlock()

	s.signer = &key

	cache := submission.NewBlockhashCache(func(ctx context.Context) (sol.Hash, error) {
		client, err := s.getClient()
		if err != nil {
			return sol.Hash{}, err
		}
		result, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return sol.Hash{}, err
		}
		if result == nil || result.Value == nil {
			return sol.Hash{}, errors.New("empty blockhash response")
		}
		return result.Value.Blockhash, nil
	}, blockhashMaxAge)

	s.protocol = submission.NewProtocol[txTemplate, sol.Hash](s.config.Name, s.logger, cache, s.send, isStaleBlockhash, s.submitOpts...)
}

// Identity returns the chain identity.
func (s *solana) Identity() types.ChainIdentity {
	return s.config.Identity()
}

// Close should be called when chain is no longer needed.
func (s *solana) Close() {
	s.ShutdownListeners()

	s.clientMutex.Lock()
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.WithField("chain", s.config.Name).WithError(err).Debug("Failed to close rpc client")
		}
		s.client = nil
	}
	s.clientMutex.Unlock()
}

// getClient returns the rpc client.
func (s *solana) getClient() (rpcClient, error) {
	s.clientMutex.RLock()
	defer s.clientMutex.RUnlock()

	if s.client == nil {
		return nil, commonerrors.ErrClientNotReady
	}
	return s.client, nil
}

// getSigner returns the relayer key and its submission protocol.
func (s *solana) getSigner() (*sol.PrivateKey, *submission.Protocol[txTemplate, sol.Hash], error) {
	s.signerMutex.RLock()
	defer s.signerMutex.RUnlock()

	if s.signer == nil {
		return nil, nil, errors.Wrap(commonerrors.ErrClientNotReady, "signer not configured")
	}
	return s.signer, s.protocol, nil
}
