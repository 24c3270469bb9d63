package chains

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/chains/evm"
	"github.com/ClipFinance/bridge-relay/chains/evm/handler"
	"github.com/ClipFinance/bridge-relay/chains/solana"
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	commontypes "github.com/ClipFinance/bridge-relay/common/types"
)

// ChainConstructor represents a function that constructs a new chain instance.
//
// Parameters:
// - ctx: the context for connecting to the chain.
// - config: the configuration for the chain.
// - logger: the logger for logging purposes.
//
// Returns:
// - commontypes.Chain: the constructed chain instance.
// - error: an error if the chain construction fails.
type ChainConstructor func(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.Chain, error)

// ChainFactory defines the interface for chain creation.
type ChainFactory interface {
	// RegisterConstructor registers a new chain constructor for a given chain type.
	//
	// Parameters:
	// - chainType: the type of the chain to register.
	// - constructor: the constructor function for the chain type.
	RegisterConstructor(chainType commontypes.ChainType, constructor ChainConstructor)

	// CreateChain creates a new chain instance based on the configuration.
	//
	// Parameters:
	// - ctx: the context for connecting to the chain.
	// - config: the configuration for the chain.
	// - logger: the logger for logging purposes.
	//
	// Returns:
	// - commontypes.Chain: the created chain instance.
	// - error: ErrInvalidChainType if no constructor handles config.ChainType.
	CreateChain(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.Chain, error)
}

// FactoryOption configures the default constructors.
type FactoryOption func(*chainFactory)

// WithCheckpointer makes chain event streams resume from stored block checkpoints.
func WithCheckpointer(store handler.Checkpointer) FactoryOption {
	return func(f *chainFactory) { f.checkpoints = store }
}

type chainFactory struct {
	// checkpoints is shared by every chain that supports resumption.
	checkpoints handler.Checkpointer
	// constructors stores the mapping of chain types to their constructors.
	constructors map[commontypes.ChainType]ChainConstructor
	// constructorsMutex protects access to the constructors map.
	constructorsMutex sync.RWMutex
}

// NewChainFactory creates a new instance of the chain factory.
//
// Returns:
// - ChainFactory: the new chain factory instance.
func NewChainFactory(opts ...FactoryOption) ChainFactory {
	factory := &chainFactory{
		constructors: make(map[commontypes.ChainType]ChainConstructor),
	}
	for _, opt := range opts {
		opt(factory)
	}

	// Initialize with default constructors.
	factory.registerConstructors()

	return factory
}

// RegisterConstructor registers a new chain constructor.
func (f *chainFactory) RegisterConstructor(chainType commontypes.ChainType, constructor ChainConstructor) {
	f.constructorsMutex.Lock()
	defer f.constructorsMutex.Unlock()

	f.constructors[chainType] = constructor
}

// CreateChain creates a new chain instance based on the configuration.
func (f *chainFactory) CreateChain(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.Chain, error) {
	f.constructorsMutex.RLock()
	constructor, exists := f.constructors[config.ChainType]
	f.constructorsMutex.RUnlock()

	if !exists {
		return nil, errors.Wrapf(commonerrors.ErrInvalidChainType, "%q for chain %s", config.ChainType, config.Name)
	}

	return constructor(ctx, config, logger)
}

// registerConstructors registers the blockchain constructors for the chain factory instance.
func (f *chainFactory) registerConstructors() {
	f.RegisterConstructor(commontypes.EVM, func(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.Chain, error) {
		var opts []evm.Option
		if f.checkpoints != nil {
			opts = append(opts, evm.WithCheckpointer(f.checkpoints))
		}
		return evm.NewEvmChain(ctx, config, logger, opts...)
	})

	f.RegisterConstructor(commontypes.SOLANA, func(ctx context.Context, config *commontypes.ChainConfig, logger *logrus.Logger) (commontypes.Chain, error) {
		var opts []solana.Option
		if f.checkpoints != nil {
			opts = append(opts, solana.WithCheckpointer(f.checkpoints))
		}
		return solana.NewSolanaChain(ctx, config, logger, opts...)
	})
}
