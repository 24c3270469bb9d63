package dbconfig

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/ClipFinance/bridge-relay/dbconfig/models"
)

const rpcColumns = `
          id,
          chain_nonce,
          url,
          provider,
          active,
          created_at,
          updated_at
`

// GetRPCsByChainNonce returns the endpoints of a chain, newest first.
//
// Parameters:
// - ctx: the context for managing the request.
// - nonce: the relay chain nonce.
// - activeOnly: only return active endpoints.
//
// Returns:
// - []models.RPC: the endpoints.
// - error: ErrInvalidChainNonce for nonce 0, or an error if the database operation fails.
func (r *DBConfig) GetRPCsByChainNonce(ctx context.Context, nonce uint32, activeOnly bool) ([]models.RPC, error) {
	if nonce == 0 {
		return nil, ErrInvalidChainNonce
	}

	query := `SELECT ` + rpcColumns + ` FROM rpcs WHERE chain_nonce = $1`
	args := []interface{}{nonce}
	if activeOnly {
		query += ` AND active = $2`
		args = append(args, true)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query rpcs of chain %d", nonce)
	}
	defer rows.Close()

	var rpcs []models.RPC
	for rows.Next() {
		rpc, err := scanRPC(rows)
		if err != nil {
			return nil, err
		}
		rpcs = append(rpcs, *rpc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate rpcs")
	}

	return rpcs, nil
}

func scanRPC(row rowScanner) (*models.RPC, error) {
	var (
		rpc      models.RPC
		provider sql.NullString
	)
	if err := row.Scan(
		&rpc.ID,
		&rpc.ChainNonce,
		&rpc.URL,
		&provider,
		&rpc.Active,
		&rpc.CreatedAt,
		&rpc.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan rpc")
	}

	rpc.Provider = provider.String
	return &rpc, nil
}
