package solana

import (
	"context"

	sol "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/submission"
)

const (
	// defaultComputeUnits is the compute unit limit of a bridge transaction.
	defaultComputeUnits = 200_000
	// defaultPriorityFee is the compute unit price in micro-lamports.
	defaultPriorityFee = 1_000
)

var isStaleBlockhash = submission.ContainsAny(
	"blockhash not found",
	"block height exceeded",
)

// txTemplate is an unsigned instruction list without a recent blockhash.
// Every submission attempt builds a fresh transaction from it.
type txTemplate struct {
	Instructions []sol.Instruction
}

// newTemplate prefixes instruction with the compute budget instructions.
func newTemplate(instruction sol.Instruction) (txTemplate, error) {
	limit, err := computebudget.NewSetComputeUnitLimitInstruction(defaultComputeUnits).ValidateAndBuild()
	if err != nil {
		return txTemplate{}, errors.Wrap(err, "failed to create compute unit limit instruction")
	}
	price, err := computebudget.NewSetComputeUnitPriceInstruction(defaultPriorityFee).ValidateAndBuild()
	if err != nil {
		return txTemplate{}, errors.Wrap(err, "failed to create priority fee instruction")
	}

	return txTemplate{Instructions: []sol.Instruction{limit, price, instruction}}, nil
}

// buildTransaction signs tpl against blockhash. Signing is deterministic, so
// the same template and blockhash always yield the same signature.
func buildTransaction(tpl txTemplate, blockhash sol.Hash, key sol.PrivateKey) (*sol.Transaction, error) {
	tx, err := sol.NewTransaction(tpl.Instructions, blockhash, sol.TransactionPayer(key.PublicKey()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create transaction")
	}

	_, err = tx.Sign(func(pub sol.PublicKey) *sol.PrivateKey {
		if key.PublicKey().Equals(pub) {
			return &key
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	return tx, nil
}

// send builds, signs and broadcasts one attempt.
//
// Parameters:
// - ctx: the context for managing the request.
// - tpl: the bridge instructions.
// - blockhash: the recent blockhash of this attempt.
//
// Returns:
// - string: the transaction signature.
// - error: an error if the client or signer is not initialized, or if signing or sending fails.
func (s *solana) send(ctx context.Context, tpl txTemplate, blockhash sol.Hash) (string, error) {
	client, err := s.getClient()
	if err != nil {
		return "", err
	}

	key, _, err := s.getSigner()
	if err != nil {
		return "", err
	}

	tx, err := buildTransaction(tpl, blockhash, *key)
	if err != nil {
		return "", err
	}

	sig, err := client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentProcessed,
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"chain":     s.config.Name,
			"blockhash": blockhash.String(),
		}).WithError(err).Warn("Failed to send transaction")
		return "", errors.Wrap(err, "failed to send transaction")
	}

	s.logger.WithFields(logrus.Fields{
		"chain":     s.config.Name,
		"signature": sig.String(),
	}).Debug("Transaction broadcast")

	return sig.String(), nil
}
