package evm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/ClipFinance/bridge-relay/chains/evm/generated"
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/nft"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// DecodeEvent converts a bridge log into a canonical event.
//
// Parameters:
// - raw: the raw event delivered by the event handler.
//
// Returns:
// - types.Event: the canonical event, or nil if the log is not a bridge event.
// - error: ErrDecode if the log is a bridge event that cannot be decoded.
func (e *evm) DecodeEvent(raw types.RawEvent) (types.Event, error) {
	var log ethtypes.Log
	switch data := raw.Data.(type) {
	case ethtypes.Log:
		log = data
	case *ethtypes.Log:
		log = *data
	default:
		return nil, errors.Wrapf(commonerrors.ErrDecode, "unexpected payload %T", raw.Data)
	}

	return decodeBridgeLog(e.bridgeABI, e.bridge, log)
}

func decodeBridgeLog(bridgeABI abi.ABI, bridge common.Address, log ethtypes.Log) (types.Event, error) {
	if log.Address != bridge || len(log.Topics) == 0 {
		return nil, nil
	}

	event, err := bridgeABI.EventByID(log.Topics[0])
	if err != nil {
		return nil, nil
	}

	values, err := bridgeABI.Unpack(event.Name, log.Data)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrDecode, "%s in tx %s: %v", event.Name, log.TxHash.Hex(), err)
	}

	ev, err := toEvent(event.Name, values)
	if err != nil {
		return nil, errors.Wrapf(commonerrors.ErrDecode, "%s in tx %s: %v", event.Name, log.TxHash.Hex(), err)
	}
	return ev, nil
}

// toEvent maps unpacked event arguments, in ABI order, onto a canonical event.
func toEvent(name string, values []interface{}) (types.Event, error) {
	if len(values) < 3 {
		return nil, errors.New("unexpected argument count")
	}
	actionID, ok1 := values[0].(*big.Int)
	chainNonce, ok2 := values[1].(uint64)
	to, ok3 := values[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New("malformed event header")
	}
	if chainNonce > uint64(^uint32(0)) {
		return nil, errors.Errorf("chain nonce %d out of range", chainNonce)
	}
	destination := types.ChainNonce(chainNonce)

	switch name {
	case generated.EventTransfer, generated.EventUnfreeze:
		if len(values) != 4 {
			return nil, errors.New("unexpected argument count")
		}
		value, ok := values[3].(*big.Int)
		if !ok {
			return nil, errors.New("malformed value")
		}
		if name == generated.EventTransfer {
			return types.NewTransfer(actionID, destination, to, value), nil
		}
		return types.NewUnfreeze(actionID, destination, to, value), nil

	case generated.EventTransferErc721, generated.EventTransferErc1155:
		if len(values) != 6 {
			return nil, errors.New("unexpected argument count")
		}
		tokenID, ok1 := values[3].(*big.Int)
		contract, ok2 := values[4].(common.Address)
		uri, ok3 := values[5].(string)
		if !ok1 || !ok2 || !ok3 {
			return nil, errors.New("malformed nft arguments")
		}

		kind := nft.ERC721
		if name == generated.EventTransferErc1155 {
			kind = nft.ERC1155
		}
		pointer, err := nft.EncodeEvm(nft.EvmPointer{
			Kind:     kind,
			TokenID:  tokenID.String(),
			Contract: contract.Hex(),
		})
		if err != nil {
			return nil, err
		}
		return types.NewTransferUnique(actionID, destination, to, pointer, uri), nil

	case generated.EventUnfreezeNft:
		if len(values) != 4 {
			return nil, errors.New("unexpected argument count")
		}
		data, ok := values[3].([]byte)
		if !ok {
			return nil, errors.New("malformed nft data")
		}
		return types.NewUnfreezeUnique(actionID, destination, to, data), nil
	}

	return nil, errors.Wrapf(commonerrors.ErrUnknownEventKind, "event %s", name)
}
