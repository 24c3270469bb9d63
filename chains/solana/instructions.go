package solana

import (
	"bytes"
	"encoding/binary"
	"math/big"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// Bridge program instruction discriminators.
const (
	ixValidateTransfer uint8 = iota
	ixValidateUnfreeze
	ixValidateTransferNft
	ixValidateUnfreezeNft
)

var (
	bridgeStateSeed = []byte("bridge")
	actionSeed      = []byte("action")
)

// bridgeInstruction is the Borsh-encoded data of a bridge program instruction:
//
//	u8 kind | u128 action_id | body
//
// where body is u32 origin_nonce + u128 amount (ValidateTransfer), u128 amount
// (ValidateUnfreeze), bytes pointer + string uri (ValidateTransferNft) or
// nothing (ValidateUnfreezeNft, the mint travels as an account).
type bridgeInstruction struct {
	Kind        uint8
	ActionID    *big.Int
	OriginNonce uint32
	Amount      *big.Int
	Pointer     []byte
	URI         string
}

// MarshalWithEncoder implements bin.EncoderDecoder.
func (ix bridgeInstruction) MarshalWithEncoder(encoder *bin.Encoder) error {
	if err := encoder.WriteUint8(ix.Kind); err != nil {
		return err
	}
	if err := writeU128(encoder, ix.ActionID); err != nil {
		return err
	}

	switch ix.Kind {
	case ixValidateTransfer:
		if err := encoder.WriteUint32(ix.OriginNonce, binary.LittleEndian); err != nil {
			return err
		}
		return writeU128(encoder, ix.Amount)
	case ixValidateUnfreeze:
		return writeU128(encoder, ix.Amount)
	case ixValidateTransferNft:
		if err := encoder.WriteBytes(ix.Pointer, true); err != nil {
			return err
		}
		return encoder.WriteString(ix.URI)
	case ixValidateUnfreezeNft:
		return nil
	}
	return errors.Errorf("unknown instruction %d", ix.Kind)
}

func (ix bridgeInstruction) data() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := ix.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// actionSeedBytes is the little-endian u128 encoding of an action id.
func actionSeedBytes(actionID *big.Int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := writeU128(bin.NewBorshEncoder(buf), actionID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildBridgeInstruction assembles a bridge program instruction.
//
// Accounts, in order: relayer (signer), bridge state PDA, action record PDA,
// recipient, the extra accounts, system program. The action record PDA makes
// a second validation of the same action fail on-chain.
//
// Parameters:
// - payer: the relayer account.
// - ix: the instruction data.
// - recipient: the account receiving value or the NFT.
// - extra: additional writable accounts such as the NFT mint.
//
// Returns:
// - sol.Instruction: the instruction.
// - error: an error if the data cannot be encoded or a PDA cannot be derived.
func (s *solana) buildBridgeInstruction(
	payer sol.PublicKey,
	ix bridgeInstruction,
	recipient sol.PublicKey,
	extra ...sol.PublicKey,
) (sol.Instruction, error) {
	data, err := ix.data()
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode bridge instruction")
	}

	state, _, err := sol.FindProgramAddress([][]byte{bridgeStateSeed}, s.program)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive bridge state address")
	}

	seed, err := actionSeedBytes(ix.ActionID)
	if err != nil {
		return nil, err
	}
	action, _, err := sol.FindProgramAddress([][]byte{actionSeed, seed}, s.program)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive action address")
	}

	accounts := sol.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: state, IsSigner: false, IsWritable: true},
		{PublicKey: action, IsSigner: false, IsWritable: true},
		{PublicKey: recipient, IsSigner: false, IsWritable: true},
	}
	for _, account := range extra {
		accounts = append(accounts, &sol.AccountMeta{PublicKey: account, IsSigner: false, IsWritable: true})
	}
	accounts = append(accounts, &sol.AccountMeta{PublicKey: sol.SystemProgramID, IsSigner: false, IsWritable: false})

	return sol.NewInstruction(s.program, accounts, data), nil
}
