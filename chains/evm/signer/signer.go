// Package signer holds the relayer's EVM account key.
package signer

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ErrNoKey is returned when a signer is created without a key.
var ErrNoKey = errors.New("private key is nil")

// Signer signs bridge transactions on behalf of the relayer account.
type Signer interface {
	// SignTx signs tx for chainID with the latest signer rules of that chain.
	// Signing is deterministic (RFC 6979): the same transaction always yields
	// the same signature and hash.
	SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error)

	// Address returns the relayer address.
	Address() common.Address
}

type keySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner wraps key.
func NewSigner(key *ecdsa.PrivateKey) (Signer, error) {
	if key == nil {
		return nil, ErrNoKey
	}
	return &keySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// NewSignerFromHex parses a hex-encoded key, with or without 0x prefix.
func NewSignerFromHex(hexKey string) (Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return NewSigner(key)
}

func (s *keySigner) Address() common.Address {
	return s.address
}

func (s *keySigner) SignTx(tx *ethtypes.Transaction, chainID *big.Int) (*ethtypes.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.Errorf("invalid chain id %v", chainID)
	}

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	return signed, nil
}
