package dbconfig

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/ClipFinance/bridge-relay/common/types"
	"github.com/ClipFinance/bridge-relay/dbconfig/models"
)

const chainColumns = `
          id,
          nonce,
          chain_id,
          name,
          chain_type,
          bridge_address,
          tx_type,
          start_block,
          active,
          created_at,
          updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// GetChains returns all chains from the database, optionally filtering by active status.
//
// Parameters:
// - ctx: the context for managing the request.
// - activeOnly: a boolean flag to filter only active chains.
//
// Returns:
// - []models.Chain: the chains ordered by nonce.
// - error: an error if the database operation fails.
func (r *DBConfig) GetChains(ctx context.Context, activeOnly bool) ([]models.Chain, error) {
	query := `SELECT ` + chainColumns + ` FROM chains`

	var args []interface{}
	if activeOnly {
		query += " WHERE active = $1"
		args = append(args, true)
	}

	query += " ORDER BY nonce ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query chains")
	}
	defer rows.Close()

	var chains []models.Chain
	for rows.Next() {
		chain, err := scanChain(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan chain")
		}
		chains = append(chains, *chain)
	}

	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate chains")
	}

	return chains, nil
}

// GetChainByNonce returns the chain registered under nonce.
//
// Parameters:
// - ctx: the context for managing the request.
// - nonce: the relay chain nonce.
//
// Returns:
// - *models.Chain: the chain.
// - error: ErrChainNotFound if no chain has the nonce.
func (r *DBConfig) GetChainByNonce(ctx context.Context, nonce uint32) (*models.Chain, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chainColumns+` FROM chains WHERE nonce = $1`, nonce)

	chain, err := scanChain(row)
	if err == sql.ErrNoRows {
		return nil, ErrChainNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query chain")
	}

	return chain, nil
}

// LoadChainConfigs builds chain configurations from the active chains and
// their most recent active RPC. Private keys are not stored in the database.
//
// Parameters:
// - ctx: the context for managing the request.
//
// Returns:
// - []*types.ChainConfig: one configuration per active chain.
// - error: an error if a chain has no active RPC or the database operation fails.
func (r *DBConfig) LoadChainConfigs(ctx context.Context) ([]*types.ChainConfig, error) {
	chains, err := r.GetChains(ctx, true)
	if err != nil {
		return nil, err
	}

	configs := make([]*types.ChainConfig, 0, len(chains))
	for _, chain := range chains {
		rpcs, err := r.GetRPCsByChainNonce(ctx, chain.Nonce, true)
		if err != nil {
			return nil, err
		}
		if len(rpcs) == 0 {
			return nil, errors.Errorf("no active rpc for chain %s", chain.Name)
		}

		config := &types.ChainConfig{
			Name:          chain.Name,
			ChainType:     types.ParseChainType(chain.Type),
			Nonce:         types.ChainNonce(chain.Nonce),
			ChainID:       chain.ChainID,
			TxType:        chain.TxType,
			BridgeAddress: chain.BridgeAddress,
			StartBlock:    chain.StartBlock,
		}
		for _, rpc := range rpcs {
			if types.GetSubscriptionMode(rpc.URL) == types.WebSocketMode {
				if config.WsUrl == "" {
					config.WsUrl = rpc.URL
				}
			} else if config.RpcUrl == "" {
				config.RpcUrl = rpc.URL
			}
		}
		if config.RpcUrl == "" {
			config.RpcUrl = config.WsUrl
		}

		configs = append(configs, config)
	}

	return configs, nil
}

func scanChain(row rowScanner) (*models.Chain, error) {
	var chain models.Chain
	var bridgeAddress sql.NullString
	var chainType sql.NullString

	err := row.Scan(
		&chain.ID,
		&chain.Nonce,
		&chain.ChainID,
		&chain.Name,
		&chainType,
		&bridgeAddress,
		&chain.TxType,
		&chain.StartBlock,
		&chain.Active,
		&chain.CreatedAt,
		&chain.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if bridgeAddress.Valid {
		chain.BridgeAddress = bridgeAddress.String
	}
	if chainType.Valid {
		chain.Type = strings.ToUpper(chainType.String)
	}

	return &chain, nil
}
