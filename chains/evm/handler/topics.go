package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Bridge event signatures.
const (
	TransferSignature        = "Transfer(uint256,uint64,string,uint256)"
	UnfreezeSignature        = "Unfreeze(uint256,uint64,string,uint256)"
	TransferErc721Signature  = "TransferErc721(uint256,uint64,string,uint256,address,string)"
	TransferErc1155Signature = "TransferErc1155(uint256,uint64,string,uint256,address,string)"
	UnfreezeNftSignature     = "UnfreezeNft(uint256,uint64,string,bytes)"
)

// BridgeTopics returns the topic ids of every bridge event the relay follows.
func BridgeTopics() []common.Hash {
	return []common.Hash{
		crypto.Keccak256Hash([]byte(TransferSignature)),
		crypto.Keccak256Hash([]byte(UnfreezeSignature)),
		crypto.Keccak256Hash([]byte(TransferErc721Signature)),
		crypto.Keccak256Hash([]byte(TransferErc1155Signature)),
		crypto.Keccak256Hash([]byte(UnfreezeNftSignature)),
	}
}
