package types

import (
	"bytes"
	"context"
	"math/big"
)

// EventKind names a canonical event variant.
type EventKind string

const (
	// KindTransfer is a fungible value lock on the source chain.
	KindTransfer EventKind = "TRANSFER"
	// KindUnfreeze is a wrapped fungible burn to be released on the original chain.
	KindUnfreeze EventKind = "UNFREEZE"
	// KindTransferUnique is a non-fungible lock on the source chain.
	KindTransferUnique EventKind = "TRANSFER_UNIQUE"
	// KindUnfreezeUnique is a wrapped non-fungible burn to be released on the original chain.
	KindUnfreezeUnique EventKind = "UNFREEZE_UNIQUE"
)

// String converts EventKind to string representation.
func (k EventKind) String() string {
	return string(k)
}

// Event is a normalized, chain-agnostic relay action.
//
// The set of implementations is closed: Transfer, Unfreeze, TransferUnique and
// UnfreezeUnique. Use SubmitEvent to dispatch an event to the matching
// EventSubmitter method.
type Event interface {
	// ActionID returns the source-assigned idempotence key of the action.
	ActionID() *big.Int
	// DestinationNonce returns the chain nonce the event must be submitted to.
	DestinationNonce() ChainNonce
	// Recipient returns the chain-native address receiving the asset.
	Recipient() string
	// Kind returns the variant name.
	Kind() EventKind
	// Equal reports whether other is the same variant with equal fields.
	Equal(other Event) bool

	submitTo(ctx context.Context, s EventSubmitter, origin ChainNonce) (*SubmitResult, error)
}

// EventSubmitter has one entry point per canonical event variant.
// A destination chain that implements it is forced to handle every variant.
type EventSubmitter interface {
	SubmitTransfer(ctx context.Context, ev Transfer, origin ChainNonce) (*SubmitResult, error)
	SubmitUnfreeze(ctx context.Context, ev Unfreeze, origin ChainNonce) (*SubmitResult, error)
	SubmitTransferUnique(ctx context.Context, ev TransferUnique, origin ChainNonce) (*SubmitResult, error)
	SubmitUnfreezeUnique(ctx context.Context, ev UnfreezeUnique, origin ChainNonce) (*SubmitResult, error)
}

// SubmitEvent routes ev to the EventSubmitter method matching its variant.
func SubmitEvent(ctx context.Context, s EventSubmitter, ev Event, origin ChainNonce) (*SubmitResult, error) {
	return ev.submitTo(ctx, s, origin)
}

// EventHeader carries the fields shared by every canonical event.
// Events are immutable: accessors return copies.
type EventHeader struct {
	action      *big.Int
	destination ChainNonce
	to          string
}

// ActionID returns a copy of the action id.
func (h EventHeader) ActionID() *big.Int {
	return copyInt(h.action)
}

// DestinationNonce returns the destination chain nonce.
func (h EventHeader) DestinationNonce() ChainNonce {
	return h.destination
}

// Recipient returns the destination address.
func (h EventHeader) Recipient() string {
	return h.to
}

func (h EventHeader) equal(other EventHeader) bool {
	return copyInt(h.action).Cmp(copyInt(other.action)) == 0 &&
		h.destination == other.destination &&
		h.to == other.to
}

func newHeader(action *big.Int, destination ChainNonce, to string) EventHeader {
	return EventHeader{
		action:      copyInt(action),
		destination: destination,
		to:          to,
	}
}

// Transfer locks fungible value on the source chain to be minted on the destination.
type Transfer struct {
	EventHeader
	amount *big.Int
}

// NewTransfer creates a Transfer event owning copies of its arguments.
func NewTransfer(action *big.Int, destination ChainNonce, to string, amount *big.Int) Transfer {
	return Transfer{EventHeader: newHeader(action, destination, to), amount: copyInt(amount)}
}

// Kind returns KindTransfer.
func (Transfer) Kind() EventKind { return KindTransfer }

// Amount returns a copy of the transferred amount.
func (e Transfer) Amount() *big.Int { return copyInt(e.amount) }

// Equal reports whether other is a Transfer with the same fields.
func (e Transfer) Equal(other Event) bool {
	o, ok := other.(Transfer)
	return ok && e.equal(o.EventHeader) && copyInt(e.amount).Cmp(copyInt(o.amount)) == 0
}

func (e Transfer) submitTo(ctx context.Context, s EventSubmitter, origin ChainNonce) (*SubmitResult, error) {
	return s.SubmitTransfer(ctx, e, origin)
}

// Unfreeze burns wrapped fungible value to be released on the original chain.
type Unfreeze struct {
	EventHeader
	amount *big.Int
}

// NewUnfreeze creates an Unfreeze event owning copies of its arguments.
func NewUnfreeze(action *big.Int, destination ChainNonce, to string, amount *big.Int) Unfreeze {
	return Unfreeze{EventHeader: newHeader(action, destination, to), amount: copyInt(amount)}
}

// Kind returns KindUnfreeze.
func (Unfreeze) Kind() EventKind { return KindUnfreeze }

// Amount returns a copy of the released amount.
func (e Unfreeze) Amount() *big.Int { return copyInt(e.amount) }

// Equal reports whether other is an Unfreeze with the same fields.
func (e Unfreeze) Equal(other Event) bool {
	o, ok := other.(Unfreeze)
	return ok && e.equal(o.EventHeader) && copyInt(e.amount).Cmp(copyInt(o.amount)) == 0
}

func (e Unfreeze) submitTo(ctx context.Context, s EventSubmitter, origin ChainNonce) (*SubmitResult, error) {
	return s.SubmitUnfreeze(ctx, e, origin)
}

// TransferUnique locks a single NFT on the source chain.
// The pointer is an encoded envelope from the nft package.
type TransferUnique struct {
	EventHeader
	nftPointer []byte
	nftURI     string
}

// NewTransferUnique creates a TransferUnique event owning copies of its arguments.
func NewTransferUnique(action *big.Int, destination ChainNonce, to string, pointer []byte, uri string) TransferUnique {
	return TransferUnique{
		EventHeader: newHeader(action, destination, to),
		nftPointer:  copyBytes(pointer),
		nftURI:      uri,
	}
}

// Kind returns KindTransferUnique.
func (TransferUnique) Kind() EventKind { return KindTransferUnique }

// NftPointer returns a copy of the encoded NFT pointer.
func (e TransferUnique) NftPointer() []byte { return copyBytes(e.nftPointer) }

// NftURI returns the metadata URI of the NFT.
func (e TransferUnique) NftURI() string { return e.nftURI }

// Equal reports whether other is a TransferUnique with the same fields.
func (e TransferUnique) Equal(other Event) bool {
	o, ok := other.(TransferUnique)
	return ok && e.equal(o.EventHeader) && bytes.Equal(e.nftPointer, o.nftPointer) && e.nftURI == o.nftURI
}

func (e TransferUnique) submitTo(ctx context.Context, s EventSubmitter, origin ChainNonce) (*SubmitResult, error) {
	return s.SubmitTransferUnique(ctx, e, origin)
}

// UnfreezeUnique burns a wrapped NFT to be released on the original chain.
type UnfreezeUnique struct {
	EventHeader
	nftPointer []byte
}

// NewUnfreezeUnique creates an UnfreezeUnique event owning copies of its arguments.
func NewUnfreezeUnique(action *big.Int, destination ChainNonce, to string, pointer []byte) UnfreezeUnique {
	return UnfreezeUnique{
		EventHeader: newHeader(action, destination, to),
		nftPointer:  copyBytes(pointer),
	}
}

// Kind returns KindUnfreezeUnique.
func (UnfreezeUnique) Kind() EventKind { return KindUnfreezeUnique }

// NftPointer returns a copy of the encoded NFT pointer.
func (e UnfreezeUnique) NftPointer() []byte { return copyBytes(e.nftPointer) }

// Equal reports whether other is an UnfreezeUnique with the same fields.
func (e UnfreezeUnique) Equal(other Event) bool {
	o, ok := other.(UnfreezeUnique)
	return ok && e.equal(o.EventHeader) && bytes.Equal(e.nftPointer, o.nftPointer)
}

func (e UnfreezeUnique) submitTo(ctx context.Context, s EventSubmitter, origin ChainNonce) (*SubmitResult, error) {
	return s.SubmitUnfreezeUnique(ctx, e, origin)
}

// RawEvent is a chain-native event as delivered by a chain's event stream.
//
// Fields:
// - ChainNonce: the nonce of the chain that produced the event.
// - BlockNumber: the block (or slot) the event was included in.
// - BlockHash: the hash of that block, when the chain provides one.
// - TransactionHash: the hash (or signature) of the emitting transaction.
// - LogIndex: the position of the event within the transaction.
// - Data: the chain-native payload, interpreted by the chain's decoder.
type RawEvent struct {
	ChainNonce      ChainNonce
	BlockNumber     uint64
	BlockHash       string
	TransactionHash string
	LogIndex        uint
	Data            interface{}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
