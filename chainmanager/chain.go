package chainmanager

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// ErrNotImplemented is returned when a chain lacks the requested component.
var ErrNotImplemented = commonerrors.ErrNotImplemented

// Chain implements types.Chain interface with thread-safe access to dependencies.
// Each dependency is protected by a read-write mutex to ensure thread-safe access.
type Chain struct {
	identity  types.ChainIdentity  // Chain identity, constant for the lifetime of the chain.
	handler   types.EventHandler   // Event handler implementation.
	decoder   types.EventDecoder   // Event decoder implementation.
	submitter types.EventSubmitter // Event submitter implementation.

	// Mutexes for thread-safe access to dependencies.
	handlerMutex   sync.RWMutex // Mutex for event handler.
	decoderMutex   sync.RWMutex // Mutex for event decoder.
	submitterMutex sync.RWMutex // Mutex for event submitter.
}

// NewChain creates a new Chain instance.
//
// Parameters:
// - identity: the chain identity.
// - handler: the event handler implementation.
// - decoder: the event decoder implementation.
// - submitter: the event submitter implementation.
//
// Returns:
// - *Chain: a new Chain instance.
func NewChain(
	identity types.ChainIdentity,
	handler types.EventHandler,
	decoder types.EventDecoder,
	submitter types.EventSubmitter,
) *Chain {
	return &Chain{
		identity:  identity,
		handler:   handler,
		decoder:   decoder,
		submitter: submitter,
	}
}

// Identity returns the chain identity.
func (c *Chain) Identity() types.ChainIdentity {
	return c.identity
}

// InitEventStream starts the chain's event stream with thread-safe access.
// If the handler is not implemented, it returns an error.
//
// Parameters:
// - ctx: context bounding the lifetime of the stream.
// - eventChan: channel to receive raw chain events.
//
// Returns:
// - error: an error if the handler is not implemented or if the subscription fails.
func (c *Chain) InitEventStream(ctx context.Context, eventChan chan<- types.RawEvent) error {
	c.handlerMutex.RLock()
	defer c.handlerMutex.RUnlock()

	if c.handler == nil {
		return ErrNotImplemented
	}
	return c.handler.InitEventStream(ctx, eventChan)
}

// ShutdownListeners stops all active subscriptions and event handlers.
func (c *Chain) ShutdownListeners() {
	c.handlerMutex.RLock()
	defer c.handlerMutex.RUnlock()

	if c.handler != nil {
		c.handler.ShutdownListeners()
	}
}

// DecodeEvent decodes a raw event with thread-safe access.
//
// Parameters:
// - raw: the raw chain event.
//
// Returns:
// - types.Event: the canonical event, or nil if the event is not relay-relevant.
// - error: an error if the decoder is not implemented or the event is corrupt.
func (c *Chain) DecodeEvent(raw types.RawEvent) (types.Event, error) {
	c.decoderMutex.RLock()
	defer c.decoderMutex.RUnlock()

	if c.decoder == nil {
		return nil, ErrNotImplemented
	}
	return c.decoder.DecodeEvent(raw)
}

// SubmitEvent submits ev to the submitter method matching its variant.
//
// Parameters:
// - ctx: the context for managing the request.
// - ev: the canonical event.
// - origin: the nonce of the chain the event was observed on.
//
// Returns:
// - *types.SubmitResult: the submission result.
// - error: an error if the submitter is not implemented or the submission fails.
func (c *Chain) SubmitEvent(ctx context.Context, ev types.Event, origin types.ChainNonce) (*types.SubmitResult, error) {
	c.submitterMutex.RLock()
	submitter := c.submitter
	c.submitterMutex.RUnlock()

	if submitter == nil {
		return nil, ErrNotImplemented
	}
	if ev == nil {
		return nil, errors.Wrap(commonerrors.ErrUnknownEventKind, "nil event")
	}
	return types.SubmitEvent(ctx, submitter, ev, origin)
}
