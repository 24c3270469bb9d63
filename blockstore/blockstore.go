// Package blockstore keeps the last processed block of every chain in Redis
// so event streams resume where they stopped after a restart.
package blockstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "relayer:latest_block"

// BlockStore persists per-chain block checkpoints.
type BlockStore struct {
	client redis.Cmdable
	prefix string
}

// NewBlockStore creates a block store on top of a Redis client.
//
// Parameters:
// - client: the Redis client.
// - namespace: an optional key namespace, usually the deployment name.
//
// Returns:
// - *BlockStore: the new block store.
func NewBlockStore(client redis.Cmdable, namespace string) *BlockStore {
	prefix := keyPrefix
	if namespace != "" {
		prefix = namespace + ":" + keyPrefix
	}
	return &BlockStore{client: client, prefix: prefix}
}

// NewRedisClient opens a Redis client and checks the connection.
//
// Parameters:
// - ctx: the context for the connection check.
// - addr: the Redis address.
// - password: the Redis password, empty for none.
// - db: the Redis database index.
//
// Returns:
// - *redis.Client: the connected client.
// - error: an error if Redis is unreachable.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}

	return client, nil
}

// StoreBlock records block as the last processed block of the chain.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainNonce: the relay nonce of the chain.
// - block: the last processed block number or slot.
//
// Returns:
// - error: an error if the write fails.
func (s *BlockStore) StoreBlock(ctx context.Context, chainNonce uint32, block uint64) error {
	if err := s.client.Set(ctx, s.key(chainNonce), strconv.FormatUint(block, 10), 0).Err(); err != nil {
		return errors.Wrapf(err, "failed to store block for chain %d", chainNonce)
	}
	return nil
}

// TryLoadLatestBlock returns the last processed block of the chain.
//
// Parameters:
// - ctx: the context for managing the request.
// - chainNonce: the relay nonce of the chain.
//
// Returns:
// - uint64: the stored block, zero when none is stored.
// - bool: whether a block was stored.
// - error: an error if the read fails or the stored value is corrupt.
func (s *BlockStore) TryLoadLatestBlock(ctx context.Context, chainNonce uint32) (uint64, bool, error) {
	value, err := s.client.Get(ctx, s.key(chainNonce)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to load block for chain %d", chainNonce)
	}

	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "corrupt block checkpoint for chain %d", chainNonce)
	}

	return block, true, nil
}

func (s *BlockStore) key(chainNonce uint32) string {
	return fmt.Sprintf("%s:%d", s.prefix, chainNonce)
}
