package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	// gasLimitBuffer is added to the estimated gas, in percent.
	gasLimitBuffer = 10
	// baseFeeHeadroom is the share of the latest base fee a fee cap covers, in percent.
	baseFeeHeadroom = 130
	// legacyPriceMarkup is applied to the suggested legacy gas price, in percent.
	legacyPriceMarkup = 150
)

// percent returns v * pct / 100 as a new value.
func percent(v *big.Int, pct int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(pct))
	return out.Div(out, big.NewInt(100))
}

// gasLimit estimates a bridge call from the relayer and adds gasLimitBuffer.
func (e *evm) gasLimit(ctx context.Context, from common.Address, data []byte) (uint64, error) {
	client, err := e.getClient()
	if err != nil {
		return 0, err
	}

	estimate, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &e.bridge,
		Value: big.NewInt(0),
		Data:  data,
	})
	if err != nil {
		return 0, err
	}
	return estimate + estimate*gasLimitBuffer/100, nil
}

// dynamicFees prices an EIP-1559 transaction. The tip falls back to 1 wei
// when the node cannot suggest one.
//
// Returns:
// - *big.Int: the priority fee (tip cap).
// - *big.Int: the fee cap, baseFeeHeadroom of the latest base fee plus the tip.
// - error: an error if the latest header has no base fee or cannot be read.
func (e *evm) dynamicFees(ctx context.Context) (*big.Int, *big.Int, error) {
	client, err := e.getClient()
	if err != nil {
		return nil, nil, err
	}

	tip, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		e.logger.WithField("chain", e.config.Name).WithError(err).Warn("Failed to get suggested gas tip, using 1 wei")
		tip = nil
	}
	if tip == nil || tip.Sign() == 0 {
		tip = big.NewInt(1)
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get latest header")
	}
	if header.BaseFee == nil {
		return nil, nil, errors.New("chain reports no base fee")
	}

	return tip, new(big.Int).Add(percent(header.BaseFee, baseFeeHeadroom), tip), nil
}

// legacyPrice returns the suggested gas price marked up by legacyPriceMarkup.
func (e *evm) legacyPrice(ctx context.Context) (*big.Int, error) {
	client, err := e.getClient()
	if err != nil {
		return nil, err
	}

	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}
	return percent(price, legacyPriceMarkup), nil
}
