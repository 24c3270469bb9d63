package evm

import (
	"context"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/chains/evm/generated"
	"github.com/ClipFinance/bridge-relay/common/nft"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// SubmitTransfer mints wrapped value for a Transfer observed on origin.
func (e *evm) SubmitTransfer(ctx context.Context, ev types.Transfer, origin types.ChainNonce) (*types.SubmitResult, error) {
	to, err := recipientAddress(ev.Recipient())
	if err != nil {
		return nil, err
	}
	return e.call(ctx, ev, nil, generated.MethodValidateTransfer, ev.ActionID(), uint64(origin), to, ev.Amount())
}

// SubmitUnfreeze releases original value for an Unfreeze observed on origin.
func (e *evm) SubmitUnfreeze(ctx context.Context, ev types.Unfreeze, _ types.ChainNonce) (*types.SubmitResult, error) {
	to, err := recipientAddress(ev.Recipient())
	if err != nil {
		return nil, err
	}
	return e.call(ctx, ev, nil, generated.MethodValidateUnfreeze, ev.ActionID(), to, ev.Amount())
}

// SubmitTransferUnique mints a wrapped NFT carrying the origin pointer.
// The metadata record named by the last path segment of the URI is re-tagged on success.
func (e *evm) SubmitTransferUnique(ctx context.Context, ev types.TransferUnique, _ types.ChainNonce) (*types.SubmitResult, error) {
	to, err := recipientAddress(ev.Recipient())
	if err != nil {
		return nil, err
	}

	var metadata *types.MetadataUpdate
	if id := nft.MetadataID(ev.NftURI()); id != "" {
		metadata = &types.MetadataUpdate{ID: id, Data: hex.EncodeToString(ev.NftPointer())}
	}

	return e.call(ctx, ev, metadata, generated.MethodValidateTransferNft, ev.ActionID(), to, ev.NftPointer(), ev.NftURI())
}

// SubmitUnfreezeUnique releases an original NFT. The pointer must be EVM-native.
func (e *evm) SubmitUnfreezeUnique(ctx context.Context, ev types.UnfreezeUnique, _ types.ChainNonce) (*types.SubmitResult, error) {
	to, err := recipientAddress(ev.Recipient())
	if err != nil {
		return nil, err
	}

	pointer, err := nft.DecodeEvm(ev.NftPointer())
	if err != nil {
		return nil, errors.Wrap(err, "unfreeze requires an evm nft pointer")
	}
	tokenID, err := pointer.TokenIDInt()
	if err != nil {
		return nil, err
	}

	method := generated.MethodValidateUnfreezeNft
	if pointer.Kind == nft.ERC1155 {
		method = generated.MethodValidateUnfreezeNft1155
	}

	return e.call(ctx, ev, nil, method, ev.ActionID(), to, tokenID, common.HexToAddress(pointer.Contract))
}

// call packs a bridge call and drives it through the submission protocol.
func (e *evm) call(
	ctx context.Context,
	ev types.Event,
	metadata *types.MetadataUpdate,
	method string,
	args ...interface{},
) (*types.SubmitResult, error) {
	s, protocol, err := e.getSigner()
	if err != nil {
		return nil, err
	}

	data, err := e.bridgeABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	tpl, err := e.prepareTemplate(ctx, s.Address(), data)
	if err != nil {
		return nil, err
	}

	txHash, err := protocol.Submit(ctx, tpl)
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"chain":     e.config.Name,
		"method":    method,
		"action_id": ev.ActionID().String(),
		"txHash":    txHash,
	}).Info("Bridge transaction submitted")

	return &types.SubmitResult{TxHash: txHash, Metadata: metadata}, nil
}

func recipientAddress(to string) (common.Address, error) {
	if !common.IsHexAddress(to) {
		return common.Address{}, errors.Errorf("invalid evm recipient %q", to)
	}
	return common.HexToAddress(to), nil
}
