package types

import (
	"encoding/hex"
	"math/big"
	"time"
)

// MetadataUpdate describes a record of the NFT metadata store that must be
// re-tagged after a successful submission.
type MetadataUpdate struct {
	ID   string
	Data string
}

// SubmitResult is returned by a destination chain once its transaction is
// accepted for inclusion.
type SubmitResult struct {
	TxHash   string
	Metadata *MetadataUpdate
}

// TxExecuted is the payload of the "tx_executed" notification.
type TxExecuted struct {
	Destination ChainNonce
	ActionID    *big.Int
	TxHash      string
}

// FailedAction is a relay action that could not be completed and is kept for
// reconciliation.
//
// Fields:
// - ID: the record identifier.
// - Origin: the nonce of the chain the event was observed on.
// - Destination: the destination chain nonce named by the event.
// - ActionID: the decimal action id.
// - Kind: the event variant.
// - Recipient: the destination address.
// - Payload: the event-specific payload (amount or hex pointer and uri).
// - Reason: the failure classification.
// - Error: the error message.
// - Status: the reconciliation status.
// - CreatedAt: the time the failure was recorded.
type FailedAction struct {
	ID          string
	Origin      ChainNonce
	Destination ChainNonce
	ActionID    string
	Kind        EventKind
	Recipient   string
	Payload     map[string]string
	Reason      FailureReason
	Error       string
	Status      FailedActionStatus
	CreatedAt   time.Time
}

// NewFailedAction builds a pending FailedAction for ev.
func NewFailedAction(origin ChainNonce, ev Event, reason FailureReason, cause error) *FailedAction {
	action := &FailedAction{
		Origin:      origin,
		Destination: ev.DestinationNonce(),
		ActionID:    ev.ActionID().String(),
		Kind:        ev.Kind(),
		Recipient:   ev.Recipient(),
		Payload:     EventPayload(ev),
		Reason:      reason,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if cause != nil {
		action.Error = cause.Error()
	}
	return action
}

// EventPayload flattens the variant-specific fields of ev for logging and persistence.
func EventPayload(ev Event) map[string]string {
	switch e := ev.(type) {
	case Transfer:
		return map[string]string{"amount": e.Amount().String()}
	case Unfreeze:
		return map[string]string{"amount": e.Amount().String()}
	case TransferUnique:
		return map[string]string{"nft_pointer": hex.EncodeToString(e.NftPointer()), "nft_uri": e.NftURI()}
	case UnfreezeUnique:
		return map[string]string{"nft_pointer": hex.EncodeToString(e.NftPointer())}
	default:
		return map[string]string{}
	}
}
