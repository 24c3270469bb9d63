package types

// FailedActionStatus is the reconciliation status of a failed relay action.
type FailedActionStatus string

const (
	// StatusPending marks an action waiting for manual reconciliation.
	StatusPending FailedActionStatus = "PENDING"
	// StatusResolved marks an action reconciled by an operator.
	StatusResolved FailedActionStatus = "RESOLVED"
)

// FailureReason explains why a relay action did not complete.
type FailureReason string

const (
	// ReasonDecodeFailed indicates a relay-relevant event could not be decoded.
	ReasonDecodeFailed FailureReason = "DECODE_FAILED"

	// ReasonSelfRoute indicates the event names its own origin chain as destination.
	ReasonSelfRoute FailureReason = "SELF_ROUTE"

	// ReasonUnsupportedDestination indicates no chain is registered for the destination nonce.
	ReasonUnsupportedDestination FailureReason = "UNSUPPORTED_DESTINATION"

	// ReasonSubmitFailed indicates the destination chain rejected the transaction.
	ReasonSubmitFailed FailureReason = "SUBMIT_FAILED"

	// ReasonSubmitTimeout indicates the destination transaction was not accepted in time.
	ReasonSubmitTimeout FailureReason = "SUBMIT_TIMEOUT"

	// ReasonRetriesExhausted indicates sequence resynchronisation never converged.
	ReasonRetriesExhausted FailureReason = "RETRIES_EXHAUSTED"
)
