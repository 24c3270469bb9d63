package chainmanager

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// ChainCreator builds a chain from its configuration.
type ChainCreator interface {
	CreateChain(ctx context.Context, config *types.ChainConfig, logger *logrus.Logger) (types.Chain, error)
}

// chainRegistry is immutable after construction, so reads need no locking.
type chainRegistry struct {
	chains map[types.ChainNonce]types.Chain
	order  []types.ChainNonce
}

// NewChainRegistry validates chains and builds a registry keyed by chain nonce.
//
// Parameters:
// - chains: the chains to register.
//
// Returns:
// - types.ChainRegistry: the registry.
// - error: ErrDuplicateChainNonce if two chains share a nonce.
func NewChainRegistry(chains ...types.Chain) (types.ChainRegistry, error) {
	registry := &chainRegistry{
		chains: make(map[types.ChainNonce]types.Chain, len(chains)),
		order:  make([]types.ChainNonce, 0, len(chains)),
	}

	for _, chain := range chains {
		if chain == nil {
			return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "nil chain")
		}

		identity := chain.Identity()
		if existing, ok := registry.chains[identity.Nonce]; ok {
			return nil, errors.Wrapf(
				commonerrors.ErrDuplicateChainNonce,
				"nonce %d claimed by %q and %q", identity.Nonce, existing.Identity().Name, identity.Name,
			)
		}

		registry.chains[identity.Nonce] = chain
		registry.order = append(registry.order, identity.Nonce)
	}

	sort.Slice(registry.order, func(i, j int) bool { return registry.order[i] < registry.order[j] })

	return registry, nil
}

// BuildRegistry creates every configured chain through creator and registers them.
// Configurations are checked for duplicate nonces before any chain is created.
//
// Parameters:
// - ctx: the context for managing chain creation.
// - creator: the chain factory.
// - configs: the chain configurations.
// - logger: the logger passed to each chain.
//
// Returns:
// - types.ChainRegistry: the registry.
// - error: an error if validation or any chain creation fails.
func BuildRegistry(ctx context.Context, creator ChainCreator, configs []*types.ChainConfig, logger *logrus.Logger) (types.ChainRegistry, error) {
	if creator == nil {
		return nil, commonerrors.ErrFactoryNotProvided
	}

	seen := make(map[types.ChainNonce]string, len(configs))
	for _, config := range configs {
		if name, ok := seen[config.Nonce]; ok {
			return nil, errors.Wrapf(
				commonerrors.ErrDuplicateChainNonce,
				"nonce %d claimed by %q and %q", config.Nonce, name, config.Name,
			)
		}
		seen[config.Nonce] = config.Name
	}

	chains := make([]types.Chain, 0, len(configs))
	for _, config := range configs {
		chain, err := creator.CreateChain(ctx, config, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create chain %s", config.Name)
		}

		logger.WithFields(logrus.Fields{
			"chain": config.Name,
			"nonce": config.Nonce,
			"type":  config.ChainType,
		}).Info("Chain created")

		chains = append(chains, chain)
	}

	return NewChainRegistry(chains...)
}

// Get retrieves a chain by its nonce.
func (r *chainRegistry) Get(nonce types.ChainNonce) (types.Chain, bool) {
	chain, ok := r.chains[nonce]
	return chain, ok
}

// All returns every registered chain ordered by nonce.
func (r *chainRegistry) All() []types.Chain {
	chains := make([]types.Chain, 0, len(r.order))
	for _, nonce := range r.order {
		chains = append(chains, r.chains[nonce])
	}
	return chains
}

// Len returns the number of registered chains.
func (r *chainRegistry) Len() int {
	return len(r.chains)
}
