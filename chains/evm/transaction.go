package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/submission"
)

// errTxDisplaced is returned by the settle check when a broadcast transaction
// is no longer known to the node.
var errTxDisplaced = errors.New("transaction displaced after broadcast")

var staleNonceMessage = submission.ContainsAny(
	"nonce too low",
	"replacement transaction underpriced",
)

// alreadyKnown matches the node reporting that this exact signed transaction
// is already in its pool.
var alreadyKnown = submission.ContainsAny("already known")

// isStaleNonce reports whether err means the attempt lost a nonce race.
func isStaleNonce(err error) bool {
	return errors.Is(err, errTxDisplaced) || staleNonceMessage(err)
}

// txTemplate is an unsigned bridge call without a nonce. Every submission
// attempt builds a fresh transaction from it.
type txTemplate struct {
	ChainID   *big.Int
	To        common.Address
	Data      []byte
	Gas       uint64
	GasPrice  *big.Int // Legacy transactions only.
	GasTipCap *big.Int // EIP-1559 transactions only.
	GasFeeCap *big.Int // EIP-1559 transactions only.
}

// prepareTemplate prices a bridge call.
//
// Parameters:
// - ctx: the context for managing the request.
// - from: the relayer address.
// - data: the packed bridge call.
//
// Returns:
// - txTemplate: the priced call.
// - error: an error if the gas estimation or gas price retrieval fails.
func (e *evm) prepareTemplate(ctx context.Context, from common.Address, data []byte) (txTemplate, error) {
	gas, err := e.gasLimit(ctx, from, data)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to estimate gas")
		return txTemplate{}, errors.Wrap(err, "failed to estimate gas")
	}

	tpl := txTemplate{
		ChainID: new(big.Int).SetUint64(e.config.ChainID),
		To:      e.bridge,
		Data:    data,
		Gas:     gas,
	}

	if e.config.TxType == TxTypeEIP1559 {
		tpl.GasTipCap, tpl.GasFeeCap, err = e.dynamicFees(ctx)
		if err != nil {
			return txTemplate{}, errors.Wrap(err, "failed to price EIP-1559 transaction")
		}
		return tpl, nil
	}

	tpl.GasPrice, err = e.legacyPrice(ctx)
	if err != nil {
		return txTemplate{}, err
	}
	return tpl, nil
}

// buildTransaction stamps tpl with nonce. The result depends only on its inputs.
func buildTransaction(tpl txTemplate, nonce uint64) *ethtypes.Transaction {
	to := tpl.To

	if tpl.GasFeeCap != nil {
		return ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   new(big.Int).Set(tpl.ChainID),
			Nonce:     nonce,
			GasTipCap: new(big.Int).Set(tpl.GasTipCap),
			GasFeeCap: new(big.Int).Set(tpl.GasFeeCap),
			Gas:       tpl.Gas,
			To:        &to,
			Value:     big.NewInt(0),
			Data:      tpl.Data,
		})
	}

	return ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(tpl.GasPrice),
		Gas:      tpl.Gas,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     tpl.Data,
	})
}

// send builds, signs and broadcasts one attempt.
//
// Parameters:
// - ctx: the context for managing the request.
// - tpl: the priced bridge call.
// - nonce: the account nonce of this attempt.
//
// Returns:
// - string: the transaction hash.
// - error: an error if the client or signer is not initialized, or if the signing or sending fails.
func (e *evm) send(ctx context.Context, tpl txTemplate, nonce uint64) (string, error) {
	client, err := e.getClient()
	if err != nil {
		return "", err
	}

	s, _, err := e.getSigner()
	if err != nil {
		return "", err
	}

	signedTx, err := s.SignTx(buildTransaction(tpl, nonce), tpl.ChainID)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Error("Failed to sign transaction")
		return "", errors.Wrap(err, "failed to sign transaction")
	}

	err = client.SendTransaction(ctx, signedTx)
	if err != nil && alreadyKnown(err) {
		e.logger.WithFields(logrus.Fields{
			"chain":  e.config.Name,
			"nonce":  nonce,
			"txHash": signedTx.Hash().Hex(),
		}).Debug("Transaction already in pool")
		err = nil
	}
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"chain": e.config.Name,
			"nonce": nonce,
		}).WithError(err).Warn("Failed to send transaction")
		return "", errors.Wrap(err, "failed to send transaction")
	}

	e.logger.WithFields(logrus.Fields{
		"chain":  e.config.Name,
		"nonce":  nonce,
		"txHash": signedTx.Hash().Hex(),
	}).Debug("Transaction broadcast")

	return signedTx.Hash().Hex(), nil
}

// settle checks that a broadcast transaction is still known to the node.
// Lookup failures other than not-found are logged and treated as accepted.
func (e *evm) settle(ctx context.Context, hash string) error {
	client, err := e.getClient()
	if err != nil {
		return err
	}

	_, _, err = client.TransactionByHash(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return errors.Wrapf(errTxDisplaced, "tx %s", hash)
	}
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"chain":  e.config.Name,
			"txHash": hash,
		}).WithError(err).Warn("Failed to look up broadcast transaction")
	}
	return nil
}
