package types

import (
	"context"
	"fmt"
)

// ChainNonce identifies a configured chain within one relay.
// It is not a transaction sequence number.
type ChainNonce uint32

// ChainIdentity is the stable identity of a chain.
type ChainIdentity struct {
	Name  string
	Nonce ChainNonce
}

// String returns the chain tag used when tagging external records.
func (i ChainIdentity) String() string {
	return fmt.Sprintf("%s:%d", i.Name, i.Nonce)
}

// ChainConfig holds the configuration for a specific chain implementation.
//
// Fields:
// - Name: the name of the chain.
// - ChainType: the type of the chain.
// - Nonce: the relay nonce of the chain, unique within one relay.
// - ChainID: the native chain id (EVM) or zero.
// - RpcUrl: the URL for the chain's RPC endpoint.
// - WsUrl: optional websocket endpoint when it differs from RpcUrl.
// - TxType: the type of transactions supported by the chain.
// - PrivateKey: the private key for signing transactions.
// - BridgeAddress: the bridge contract (EVM) or program id (Solana).
// - StartBlock: the block to start polling from when no checkpoint exists.
type ChainConfig struct {
	Name          string
	ChainType     ChainType
	Nonce         ChainNonce
	ChainID       uint64
	RpcUrl        string
	WsUrl         string
	TxType        uint64
	PrivateKey    string
	BridgeAddress string
	StartBlock    uint64
}

// Identity returns the chain identity described by the configuration.
func (c *ChainConfig) Identity() ChainIdentity {
	return ChainIdentity{Name: c.Name, Nonce: c.Nonce}
}

// EventHandler provides event subscription functionality.
type EventHandler interface {
	// InitEventStream starts delivering raw chain events to eventChan.
	// It returns once the subscription is established; delivery continues in
	// the background, in chain order, until ctx is done or ShutdownListeners is called.
	//
	// Parameters:
	// - ctx: the context bounding the lifetime of the stream.
	// - eventChan: the channel to receive raw chain events.
	//
	// Returns:
	// - error: an error if the subscription cannot be established.
	InitEventStream(ctx context.Context, eventChan chan<- RawEvent) error

	// ShutdownListeners stops all active subscriptions.
	ShutdownListeners()
}

// EventDecoder maps raw chain events onto canonical events.
type EventDecoder interface {
	// DecodeEvent decodes a raw event.
	//
	// Parameters:
	// - raw: the raw chain event.
	//
	// Returns:
	// - Event: the canonical event, or nil when the raw event is not relay-relevant.
	// - error: an ErrDecode-wrapped error when a relay-relevant event is corrupt.
	DecodeEvent(raw RawEvent) (Event, error)
}

// TransactionSubmitter submits destination transactions for canonical events.
type TransactionSubmitter interface {
	// SubmitEvent builds, signs and broadcasts the destination transaction for ev
	// and blocks until it is accepted for inclusion.
	//
	// Parameters:
	// - ctx: the context for managing the request.
	// - ev: the canonical event.
	// - origin: the nonce of the chain the event was observed on.
	//
	// Returns:
	// - *SubmitResult: the transaction hash and an optional metadata update.
	// - error: an error if the submission fails.
	SubmitEvent(ctx context.Context, ev Event, origin ChainNonce) (*SubmitResult, error)
}

// Chain combines all chain-specific functionality.
type Chain interface {
	// Identity returns the constant identity of the chain.
	Identity() ChainIdentity

	EventHandler
	EventDecoder
	TransactionSubmitter
}

// ChainRegistry is a read-only set of chains keyed by chain nonce.
type ChainRegistry interface {
	// Get retrieves a chain by its nonce.
	//
	// Parameters:
	// - nonce: the chain nonce.
	//
	// Returns:
	// - Chain: the chain instance.
	// - bool: false if no chain is registered under nonce.
	Get(nonce ChainNonce) (Chain, bool)

	// All returns every registered chain ordered by nonce.
	All() []Chain

	// Len returns the number of registered chains.
	Len() int
}
