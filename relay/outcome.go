package relay

import (
	"context"

	"github.com/ClipFinance/bridge-relay/common/types"
)

// Stage is the terminal state of one raw event in the dispatcher.
type Stage string

const (
	// StageDropped means the raw event was not relay-relevant.
	StageDropped Stage = "DROPPED"
	// StageDecodeFailed means a relay-relevant event could not be decoded.
	StageDecodeFailed Stage = "DECODE_FAILED"
	// StageRoutingFailed means the event named its own origin or an unknown destination.
	StageRoutingFailed Stage = "ROUTING_FAILED"
	// StageSubmitFailed means the destination submission failed.
	StageSubmitFailed Stage = "SUBMIT_FAILED"
	// StageNotified means the transaction was accepted and the notification emitted.
	StageNotified Stage = "NOTIFIED"
)

// Outcome reports how the dispatcher finished with an event.
//
// Fields:
// - Origin: the chain the event was observed on.
// - Destination: the destination named by the event, zero if it was never decoded.
// - Event: the canonical event, nil for dropped or undecodable raw events.
// - Stage: the terminal stage.
// - TxHash: the destination transaction hash when submitted.
// - MetadataUpdated: true if a metadata update was applied.
// - Err: the failure, if any. For StageNotified it holds a metadata store error.
type Outcome struct {
	Origin          types.ChainIdentity
	Destination     types.ChainNonce
	Event           types.Event
	Stage           Stage
	TxHash          string
	MetadataUpdated bool
	Err             error
}

// OutcomeHook observes dispatcher outcomes. It is called from dispatcher
// goroutines and must not block.
type OutcomeHook func(Outcome)

// MetadataStore is the external NFT metadata repository.
type MetadataStore interface {
	// UpdateByID tags the record id with the chain that now holds the token.
	UpdateByID(ctx context.Context, id string, chainTag string) error
}

// Notifier is the outbound notification channel. Emit is fire-and-forget.
type Notifier interface {
	Emit(event types.TxExecuted)
}

// FailureQueue keeps failed actions for reconciliation.
type FailureQueue interface {
	Enqueue(ctx context.Context, action *types.FailedAction) error
}
