package solana

import (
	"context"
	"encoding/hex"

	sol "github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/nft"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// SubmitTransfer mints wrapped value for a Transfer observed on origin.
func (s *solana) SubmitTransfer(ctx context.Context, ev types.Transfer, origin types.ChainNonce) (*types.SubmitResult, error) {
	return s.call(ctx, ev, nil, bridgeInstruction{
		Kind:        ixValidateTransfer,
		ActionID:    ev.ActionID(),
		OriginNonce: uint32(origin),
		Amount:      ev.Amount(),
	})
}

// SubmitUnfreeze releases original value for an Unfreeze observed on origin.
func (s *solana) SubmitUnfreeze(ctx context.Context, ev types.Unfreeze, _ types.ChainNonce) (*types.SubmitResult, error) {
	return s.call(ctx, ev, nil, bridgeInstruction{
		Kind:     ixValidateUnfreeze,
		ActionID: ev.ActionID(),
		Amount:   ev.Amount(),
	})
}

// SubmitTransferUnique mints a wrapped NFT. The pointer is stored as is.
func (s *solana) SubmitTransferUnique(ctx context.Context, ev types.TransferUnique, _ types.ChainNonce) (*types.SubmitResult, error) {
	var metadata *types.MetadataUpdate
	if id := nft.MetadataID(ev.NftURI()); id != "" {
		metadata = &types.MetadataUpdate{ID: id, Data: hex.EncodeToString(ev.NftPointer())}
	}

	return s.call(ctx, ev, metadata, bridgeInstruction{
		Kind:     ixValidateTransferNft,
		ActionID: ev.ActionID(),
		Pointer:  ev.NftPointer(),
		URI:      ev.NftURI(),
	})
}

// SubmitUnfreezeUnique releases an original NFT. The pointer must be an opaque
// pointer minted on this chain whose payload is the mint address.
func (s *solana) SubmitUnfreezeUnique(ctx context.Context, ev types.UnfreezeUnique, _ types.ChainNonce) (*types.SubmitResult, error) {
	pointer, err := nft.DecodeOpaque(ev.NftPointer())
	if err != nil {
		return nil, errors.Wrap(err, "unfreeze requires an opaque nft pointer")
	}
	if pointer.ChainNonce != uint32(s.config.Nonce) {
		return nil, errors.Wrapf(commonerrors.ErrUnknownPointerShape, "pointer of chain %d on chain %d", pointer.ChainNonce, s.config.Nonce)
	}
	if len(pointer.Payload) != sol.PublicKeyLength {
		return nil, errors.Wrapf(commonerrors.ErrUnknownPointerShape, "mint payload of %d bytes", len(pointer.Payload))
	}

	return s.call(ctx, ev, nil, bridgeInstruction{
		Kind:     ixValidateUnfreezeNft,
		ActionID: ev.ActionID(),
	}, sol.PublicKeyFromBytes(pointer.Payload))
}

// call builds a bridge instruction and drives it through the submission protocol.
func (s *solana) call(
	ctx context.Context,
	ev types.Event,
	metadata *types.MetadataUpdate,
	ix bridgeInstruction,
	extra ...sol.PublicKey,
) (*types.SubmitResult, error) {
	key, protocol, err := s.getSigner()
	if err != nil {
		return nil, err
	}

	recipient, err := sol.PublicKeyFromBase58(ev.Recipient())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid solana recipient %q", ev.Recipient())
	}

	instruction, err := s.buildBridgeInstruction(key.PublicKey(), ix, recipient, extra...)
	if err != nil {
		return nil, err
	}

	tpl, err := newTemplate(instruction)
	if err != nil {
		return nil, err
	}

	signature, err := protocol.Submit(ctx, tpl)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"chain":     s.config.Name,
		"kind":      ev.Kind().String(),
		"action_id": ev.ActionID().String(),
		"signature": signature,
	}).Info("Bridge transaction submitted")

	return &types.SubmitResult{TxHash: signature, Metadata: metadata}, nil
}
