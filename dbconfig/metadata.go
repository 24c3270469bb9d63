package dbconfig

import (
	"context"

	"github.com/pkg/errors"
)

// UpdateByID tags the NFT metadata record id with the chain currently holding the token.
//
// Parameters:
// - ctx: the context for managing the request.
// - id: the metadata record id.
// - chainTag: the identity string of the holding chain.
//
// Returns:
// - error: ErrMetadataNotFound if no record has the id, or a database error.
func (r *DBConfig) UpdateByID(ctx context.Context, id string, chainTag string) error {
	if id == "" {
		return errors.Wrap(ErrMetadataNotFound, "empty id")
	}

	result, err := r.db.ExecContext(ctx, `
       UPDATE nft_metadata
       SET chain = $1, updated_at = NOW()
       WHERE id = $2`,
		chainTag,
		id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update nft metadata")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get affected rows")
	}
	if affected == 0 {
		return errors.Wrapf(ErrMetadataNotFound, "id %s", id)
	}

	return nil
}
