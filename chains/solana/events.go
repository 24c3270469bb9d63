package solana

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math/big"
	"strings"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/nft"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// Bridge program event discriminators.
const (
	eventTransfer uint8 = iota
	eventUnfreeze
	eventTransferUnique
	eventUnfreezeUnique
)

const programDataPrefix = "Program data: "

// programLogs is the raw payload of a Solana event: the log messages of one
// successful transaction that mentions the bridge program.
type programLogs struct {
	Signature sol.Signature
	Slot      uint64
	Logs      []string
}

// programEvent is a Borsh-encoded bridge program event:
//
//	u8 kind | u128 action_id | u32 chain_nonce | string to | body
//
// where body is u128 amount (Transfer, Unfreeze), [32]u8 mint + string uri
// (TransferUnique) or bytes nft_data (UnfreezeUnique).
type programEvent struct {
	Kind       uint8
	ActionID   *big.Int
	ChainNonce uint32
	To         string
	Amount     *big.Int
	Mint       sol.PublicKey
	URI        string
	NftData    []byte
}

// MarshalWithEncoder implements bin.EncoderDecoder.
func (e programEvent) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint8(e.Kind); err != nil {
		return err
	}
	if err := writeU128(encoder, e.ActionID); err != nil {
		return err
	}
	if err := encoder.WriteUint32(e.ChainNonce, binary.LittleEndian); err != nil {
		return err
	}
	if err := encoder.WriteString(e.To); err != nil {
		return err
	}

	switch e.Kind {
	case eventTransfer, eventUnfreeze:
		return writeU128(encoder, e.Amount)
	case eventTransferUnique:
		if err := encoder.WriteBytes(e.Mint[:], false); err != nil {
			return err
		}
		return encoder.WriteString(e.URI)
	case eventUnfreezeUnique:
		return encoder.WriteBytes(e.NftData, true)
	}
	return errors.Wrapf(commonerrors.ErrUnknownEventKind, "discriminator %d", e.Kind)
}

// UnmarshalWithDecoder implements bin.EncoderDecoder.
func (e *programEvent) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	if e.Kind, err = decoder.ReadUint8(); err != nil {
		return err
	}
	if e.Kind > eventUnfreezeUnique {
		return errors.Wrapf(commonerrors.ErrUnknownEventKind, "discriminator %d", e.Kind)
	}
	if e.ActionID, err = readU128(decoder); err != nil {
		return err
	}
	if e.ChainNonce, err = decoder.ReadUint32(binary.LittleEndian); err != nil {
		return err
	}
	if e.To, err = decoder.ReadString(); err != nil {
		return err
	}

	switch e.Kind {
	case eventTransfer, eventUnfreeze:
		e.Amount, err = readU128(decoder)
		return err
	case eventTransferUnique:
		mint, err := decoder.ReadBytes(sol.PublicKeyLength)
		if err != nil {
			return err
		}
		e.Mint = sol.PublicKeyFromBytes(mint)
		e.URI, err = decoder.ReadString()
		return err
	default:
		data, err := decoder.ReadByteSlice()
		if err != nil {
			return err
		}
		e.NftData = append([]byte(nil), data...)
		return nil
	}
}

// toEvent maps the program event onto a canonical event.
// Pointers minted on this chain carry the mint address as opaque payload.
func (e programEvent) toEvent(self types.ChainNonce) (types.Event, error) {
	destination := types.ChainNonce(e.ChainNonce)

	switch e.Kind {
	case eventTransfer:
		return types.NewTransfer(e.ActionID, destination, e.To, e.Amount), nil
	case eventUnfreeze:
		return types.NewUnfreeze(e.ActionID, destination, e.To, e.Amount), nil
	case eventTransferUnique:
		pointer, err := nft.EncodeOpaque(nft.OpaquePointer{ChainNonce: uint32(self), Payload: e.Mint.Bytes()})
		if err != nil {
			return nil, err
		}
		return types.NewTransferUnique(e.ActionID, destination, e.To, pointer, e.URI), nil
	case eventUnfreezeUnique:
		return types.NewUnfreezeUnique(e.ActionID, destination, e.To, e.NftData), nil
	}
	return nil, errors.Wrapf(commonerrors.ErrUnknownEventKind, "discriminator %d", e.Kind)
}

// encodeProgramEvent returns the base64 payload of a "Program data:" line.
func encodeProgramEvent(e programEvent) (string, error) {
	buf := new(bytes.Buffer)
	if err := e.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeEvent converts the LogIndex-th bridge event of a transaction into a canonical event.
//
// Parameters:
// - raw: the raw event delivered by the event stream.
//
// Returns:
// - types.Event: the canonical event, or nil if the transaction holds no such bridge event.
// - error: ErrDecode if the bridge event cannot be decoded.
func (s *solana) DecodeEvent(raw types.RawEvent) (types.Event, error) {
	logs, ok := raw.Data.(programLogs)
	if !ok {
		return nil, errors.Wrapf(commonerrors.ErrDecode, "unexpected payload %T", raw.Data)
	}

	lines := bridgeDataLines(logs.Logs, s.program)
	if int(raw.LogIndex) >= len(lines) {
		return nil, nil
	}

	ev, err := decodeProgramData(lines[raw.LogIndex], s.config.Nonce)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrDecode, "tx %s: %v", logs.Signature, err)
	}
	return ev, nil
}

func decodeProgramData(line string, self types.ChainNonce) (types.Event, error) {
	payload, err := base64.StdEncoding.DecodeString(line)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64")
	}

	decoder := bin.NewBorshDecoder(payload)
	var ev programEvent
	if err := ev.UnmarshalWithDecoder(decoder); err != nil {
		return nil, err
	}
	if decoder.HasRemaining() {
		return nil, errors.Errorf("%d trailing bytes", decoder.Remaining())
	}
	return ev.toEvent(self)
}

// bridgeDataLines returns the payloads of "Program data:" lines emitted while
// program was the innermost executing program.
func bridgeDataLines(logs []string, program sol.PublicKey) []string {
	id := program.String()

	var (
		stack []string
		out   []string
	)
	for _, line := range logs {
		if strings.HasPrefix(line, programDataPrefix) {
			if len(stack) > 0 && stack[len(stack)-1] == id {
				out = append(out, strings.TrimPrefix(line, programDataPrefix))
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 || fields[0] != "Program" || strings.HasSuffix(fields[1], ":") {
			continue
		}
		switch fields[2] {
		case "invoke":
			stack = append(stack, fields[1])
		case "success", "failed:":
			if len(stack) > 0 && stack[len(stack)-1] == fields[1] {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return out
}
