package errors

import "github.com/pkg/errors"

var (
	ErrChainNotFound       = errors.New("chain not found")
	ErrInvalidChainNonce   = errors.New("invalid chain nonce")
	ErrDatabaseConnect     = errors.New("failed to connect to database")
	ErrInvalidConfig       = errors.New("invalid chain configuration")
	ErrDuplicateChainNonce = errors.New("chain nonce already registered")
	ErrFactoryNotProvided  = errors.New("chain factory not provided")
	ErrInvalidChainType    = errors.New("invalid chain type")
	ErrNotImplemented      = errors.New("functionality not implemented")

	// Event-scoped failures.
	ErrDecode                 = errors.New("failed to decode chain event")
	ErrUnknownEventKind       = errors.New("unknown event kind")
	ErrSelfRoute              = errors.New("event routes to its own origin chain")
	ErrUnsupportedDestination = errors.New("unsupported destination chain nonce")
	ErrSubmitTimeout          = errors.New("transaction submission timed out")
	ErrRetriesExhausted       = errors.New("submission retries exhausted")
	ErrUnknownPointerShape    = errors.New("unrecognized nft pointer shape")

	ErrMetadataNotFound = errors.New("nft metadata not found")
	ErrClientNotReady   = errors.New("client not initialized")
)
