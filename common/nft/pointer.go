// Package nft encodes the cross-chain NFT identity envelope carried by
// TransferUnique and UnfreezeUnique events.
//
// Two shapes exist. The opaque shape is produced by chain families that only
// need the destination to echo the payload back on release:
//
//	u32 LE chain_nonce | u32 LE len | payload
//
// The EVM shape carries the contract coordinates of an ERC721 or ERC1155 token:
//
//	u8 kind | u32 LE len | token_id (decimal) | u32 LE len | contract (0x-hex)
//
// Both shapes are Borsh-encoded and versionless. Decoding is strict: trailing
// bytes, unknown kinds or malformed fields fail with ErrUnknownPointerShape.
package nft

import (
	"bytes"
	"math/big"
	"regexp"

	bin "github.com/gagliardetto/binary"
	"github.com/pkg/errors"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
)

// TokenKind is the EVM token standard of an NFT.
type TokenKind uint8

const (
	// ERC721 is a unique token.
	ERC721 TokenKind = 0
	// ERC1155 is a multi token.
	ERC1155 TokenKind = 1
)

// String converts TokenKind to string representation.
func (k TokenKind) String() string {
	switch k {
	case ERC721:
		return "ERC721"
	case ERC1155:
		return "ERC1155"
	default:
		return "UNKNOWN"
	}
}

var (
	decimalPattern = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// OpaquePointer echoes an NFT identifier back to the chain that produced it.
type OpaquePointer struct {
	ChainNonce uint32
	Payload    []byte
}

// MarshalWithEncoder implements bin.EncoderDecoder.
func (p OpaquePointer) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint32(p.ChainNonce, bin.LE); err != nil {
		return err
	}
	return encoder.WriteBytes(p.Payload, true)
}

// UnmarshalWithDecoder implements bin.EncoderDecoder.
func (p *OpaquePointer) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	nonce, err := decoder.ReadUint32(bin.LE)
	if err != nil {
		return err
	}
	payload, err := decoder.ReadByteSlice()
	if err != nil {
		return err
	}

	p.ChainNonce = nonce
	p.Payload = append([]byte{}, payload...)
	return nil
}

// EvmPointer identifies a token on an EVM chain.
type EvmPointer struct {
	Kind     TokenKind
	TokenID  string
	Contract string
}

// MarshalWithEncoder implements bin.EncoderDecoder.
func (p EvmPointer) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint8(uint8(p.Kind)); err != nil {
		return err
	}
	if err := encoder.WriteString(p.TokenID); err != nil {
		return err
	}
	return encoder.WriteString(p.Contract)
}

// UnmarshalWithDecoder implements bin.EncoderDecoder.
func (p *EvmPointer) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	kind, err := decoder.ReadUint8()
	if err != nil {
		return err
	}
	tokenID, err := decoder.ReadString()
	if err != nil {
		return err
	}
	contract, err := decoder.ReadString()
	if err != nil {
		return err
	}

	p.Kind = TokenKind(kind)
	p.TokenID = tokenID
	p.Contract = contract
	return nil
}

// TokenIDInt returns the token id as an integer.
func (p EvmPointer) TokenIDInt() (*big.Int, error) {
	id, ok := new(big.Int).SetString(p.TokenID, 10)
	if !ok {
		return nil, errors.Wrapf(commonerrors.ErrUnknownPointerShape, "token id %q is not decimal", p.TokenID)
	}
	return id, nil
}

// Validate checks the fields of an EVM pointer.
func (p EvmPointer) Validate() error {
	if p.Kind != ERC721 && p.Kind != ERC1155 {
		return errors.Wrapf(commonerrors.ErrUnknownPointerShape, "unknown token kind %d", p.Kind)
	}
	if !decimalPattern.MatchString(p.TokenID) {
		return errors.Wrapf(commonerrors.ErrUnknownPointerShape, "token id %q is not decimal", p.TokenID)
	}
	if !addressPattern.MatchString(p.Contract) {
		return errors.Wrapf(commonerrors.ErrUnknownPointerShape, "contract %q is not an address", p.Contract)
	}
	return nil
}

// EncodeOpaque serializes an opaque pointer.
func EncodeOpaque(p OpaquePointer) ([]byte, error) {
	return encode(p)
}

// DecodeOpaque parses data as an opaque pointer.
//
// Parameters:
// - data: the encoded envelope.
//
// Returns:
// - OpaquePointer: the decoded pointer.
// - error: ErrUnknownPointerShape if data is not exactly one opaque pointer.
func DecodeOpaque(data []byte) (OpaquePointer, error) {
	var p OpaquePointer
	if err := decode(data, &p); err != nil {
		return OpaquePointer{}, err
	}
	return p, nil
}

// EncodeEvm validates and serializes an EVM pointer.
func EncodeEvm(p EvmPointer) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return encode(p)
}

// DecodeEvm parses data as an EVM pointer.
//
// Parameters:
// - data: the encoded envelope.
//
// Returns:
// - EvmPointer: the decoded pointer.
// - error: ErrUnknownPointerShape if data is not exactly one valid EVM pointer.
func DecodeEvm(data []byte) (EvmPointer, error) {
	var p EvmPointer
	if err := decode(data, &p); err != nil {
		return EvmPointer{}, err
	}
	if err := p.Validate(); err != nil {
		return EvmPointer{}, err
	}
	return p, nil
}

func encode(v bin.BinaryMarshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := v.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, errors.Wrap(err, "failed to encode nft pointer")
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v bin.BinaryUnmarshaler) error {
	decoder := bin.NewBorshDecoder(data)
	if err := v.UnmarshalWithDecoder(decoder); err != nil {
		return errors.Wrap(commonerrors.ErrUnknownPointerShape, err.Error())
	}
	if decoder.HasRemaining() {
		return errors.Wrapf(commonerrors.ErrUnknownPointerShape, "%d trailing bytes", decoder.Remaining())
	}
	return nil
}
