package chainmanager

import (
	"github.com/ClipFinance/bridge-relay/common/types"
)

// ChainBuilder assembles a Chain from the capabilities an adapter provides.
// Capabilities left unset make the assembled chain answer ErrNotImplemented.
type ChainBuilder struct {
	identity  types.ChainIdentity
	handler   types.EventHandler
	decoder   types.EventDecoder
	submitter types.EventSubmitter
}

// NewChainBuilder starts a chain with the identity of config.
//
// Parameters:
// - config: the chain configuration the identity is taken from.
//
// Returns:
// - *ChainBuilder: a builder without capabilities.
func NewChainBuilder(config *types.ChainConfig) *ChainBuilder {
	return &ChainBuilder{identity: config.Identity()}
}

// WithEventHandler sets the source of raw events.
func (b *ChainBuilder) WithEventHandler(handler types.EventHandler) *ChainBuilder {
	b.handler = handler
	return b
}

// WithEventDecoder sets the decoder of raw events.
func (b *ChainBuilder) WithEventDecoder(decoder types.EventDecoder) *ChainBuilder {
	b.decoder = decoder
	return b
}

// WithEventSubmitter sets the submitter. Without one the chain is a source only.
func (b *ChainBuilder) WithEventSubmitter(submitter types.EventSubmitter) *ChainBuilder {
	b.submitter = submitter
	return b
}

// Build returns the assembled chain.
func (b *ChainBuilder) Build() types.Chain {
	return NewChain(b.identity, b.handler, b.decoder, b.submitter)
}
