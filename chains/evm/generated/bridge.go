// Package generated holds the ABI of the bridge contract.
package generated

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Bridge event names.
const (
	EventTransfer        = "Transfer"
	EventUnfreeze        = "Unfreeze"
	EventTransferErc721  = "TransferErc721"
	EventTransferErc1155 = "TransferErc1155"
	EventUnfreezeNft     = "UnfreezeNft"
)

// Bridge method names.
const (
	MethodValidateTransfer        = "validateTransfer"
	MethodValidateUnfreeze        = "validateUnfreeze"
	MethodValidateTransferNft     = "validateTransferNft"
	MethodValidateUnfreezeNft     = "validateUnfreezeNft"
	MethodValidateUnfreezeNft1155 = "validateUnfreezeNft1155"
)

// BridgeABI is the input ABI used to decode bridge events and encode bridge calls.
const BridgeABI = `[
  {"anonymous":false,"type":"event","name":"Transfer","inputs":[
    {"indexed":false,"internalType":"uint256","name":"actionId","type":"uint256"},
    {"indexed":false,"internalType":"uint64","name":"chainNonce","type":"uint64"},
    {"indexed":false,"internalType":"string","name":"to","type":"string"},
    {"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}]},
  {"anonymous":false,"type":"event","name":"Unfreeze","inputs":[
    {"indexed":false,"internalType":"uint256","name":"actionId","type":"uint256"},
    {"indexed":false,"internalType":"uint64","name":"chainNonce","type":"uint64"},
    {"indexed":false,"internalType":"string","name":"to","type":"string"},
    {"indexed":false,"internalType":"uint256","name":"value","type":"uint256"}]},
  {"anonymous":false,"type":"event","name":"TransferErc721","inputs":[
    {"indexed":false,"internalType":"uint256","name":"actionId","type":"uint256"},
    {"indexed":false,"internalType":"uint64","name":"chainNonce","type":"uint64"},
    {"indexed":false,"internalType":"string","name":"to","type":"string"},
    {"indexed":false,"internalType":"uint256","name":"id","type":"uint256"},
    {"indexed":false,"internalType":"address","name":"contractAddr","type":"address"},
    {"indexed":false,"internalType":"string","name":"uri","type":"string"}]},
  {"anonymous":false,"type":"event","name":"TransferErc1155","inputs":[
    {"indexed":false,"internalType":"uint256","name":"actionId","type":"uint256"},
    {"indexed":false,"internalType":"uint64","name":"chainNonce","type":"uint64"},
    {"indexed":false,"internalType":"string","name":"to","type":"string"},
    {"indexed":false,"internalType":"uint256","name":"id","type":"uint256"},
    {"indexed":false,"internalType":"address","name":"contractAddr","type":"address"},
    {"indexed":false,"internalType":"string","name":"uri","type":"string"}]},
  {"anonymous":false,"type":"event","name":"UnfreezeNft","inputs":[
    {"indexed":false,"internalType":"uint256","name":"actionId","type":"uint256"},
    {"indexed":false,"internalType":"uint64","name":"chainNonce","type":"uint64"},
    {"indexed":false,"internalType":"string","name":"to","type":"string"},
    {"indexed":false,"internalType":"bytes","name":"nftData","type":"bytes"}]},
  {"type":"function","name":"validateTransfer","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"internalType":"uint256","name":"actionId","type":"uint256"},
    {"internalType":"uint64","name":"chainNonce","type":"uint64"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"uint256","name":"value","type":"uint256"}]},
  {"type":"function","name":"validateUnfreeze","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"internalType":"uint256","name":"actionId","type":"uint256"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"uint256","name":"value","type":"uint256"}]},
  {"type":"function","name":"validateTransferNft","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"internalType":"uint256","name":"actionId","type":"uint256"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"bytes","name":"data","type":"bytes"},
    {"internalType":"string","name":"uri","type":"string"}]},
  {"type":"function","name":"validateUnfreezeNft","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"internalType":"uint256","name":"actionId","type":"uint256"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"uint256","name":"tokenId","type":"uint256"},
    {"internalType":"address","name":"contractAddr","type":"address"}]},
  {"type":"function","name":"validateUnfreezeNft1155","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"internalType":"uint256","name":"actionId","type":"uint256"},
    {"internalType":"address","name":"to","type":"address"},
    {"internalType":"uint256","name":"tokenId","type":"uint256"},
    {"internalType":"address","name":"contractAddr","type":"address"}]}
]`

var parsedBridgeABI = sync.OnceValues(func() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(BridgeABI))
})

// ParseBridgeABI returns the parsed bridge ABI.
func ParseBridgeABI() (abi.ABI, error) {
	return parsedBridgeABI()
}
