package submission

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Stamper hands out the freshness token a transaction must carry to be
// accepted by its chain: an account sequence number, a recent blockhash.
type Stamper[S any] interface {
	// Reserve returns the token for the next attempt, loading it from the
	// chain when nothing is cached.
	Reserve(ctx context.Context) (S, error)
	// Resync reloads the token from the chain's authoritative state.
	Resync(ctx context.Context) error
	// Invalidate drops the cached token so the next Reserve reloads it.
	Invalidate()
}

// SequenceTracker is a per-account sequence counter.
// Reserve hands out the cached value and optimistically advances it, so
// concurrent submissions from one account receive distinct sequences.
type SequenceTracker struct {
	fetch func(ctx context.Context) (uint64, error)

	mutex  sync.Mutex
	next   uint64
	loaded bool
}

// NewSequenceTracker creates a tracker backed by fetch, which must return the
// next sequence the chain expects for the account.
func NewSequenceTracker(fetch func(ctx context.Context) (uint64, error)) *SequenceTracker {
	return &SequenceTracker{fetch: fetch}
}

// Reserve implements Stamper.
func (t *SequenceTracker) Reserve(ctx context.Context) (uint64, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.loaded {
		next, err := t.fetch(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "failed to fetch sequence")
		}
		t.next = next
		t.loaded = true
	}

	sequence := t.next
	t.next++
	return sequence, nil
}

// Resync implements Stamper.
func (t *SequenceTracker) Resync(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	next, err := t.fetch(ctx)
	if err != nil {
		t.loaded = false
		return errors.Wrap(err, "failed to fetch sequence")
	}
	t.next = next
	t.loaded = true
	return nil
}

// Invalidate implements Stamper.
func (t *SequenceTracker) Invalidate() {
	t.mutex.Lock()
	t.loaded = false
	t.mutex.Unlock()
}

// BlockhashCache caches a recent blockhash for chains that use one instead of
// an account sequence. A cached hash older than maxAge is reloaded.
type BlockhashCache[H any] struct {
	fetch  func(ctx context.Context) (H, error)
	maxAge time.Duration

	mutex     sync.Mutex
	current   H
	fetchedAt time.Time
	loaded    bool
}

// NewBlockhashCache creates a cache backed by fetch.
func NewBlockhashCache[H any](fetch func(ctx context.Context) (H, error), maxAge time.Duration) *BlockhashCache[H] {
	return &BlockhashCache[H]{fetch: fetch, maxAge: maxAge}
}

// Reserve implements Stamper.
func (c *BlockhashCache[H]) Reserve(ctx context.Context) (H, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.loaded || (c.maxAge > 0 && time.Since(c.fetchedAt) > c.maxAge) {
		if err := c.load(ctx); err != nil {
			var zero H
			return zero, err
		}
	}
	return c.current, nil
}

// Resync implements Stamper.
func (c *BlockhashCache[H]) Resync(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.load(ctx)
}

// Invalidate implements Stamper.
func (c *BlockhashCache[H]) Invalidate() {
	c.mutex.Lock()
	c.loaded = false
	c.mutex.Unlock()
}

func (c *BlockhashCache[H]) load(ctx context.Context) error {
	hash, err := c.fetch(ctx)
	if err != nil {
		c.loaded = false
		return errors.Wrap(err, "failed to fetch blockhash")
	}
	c.current = hash
	c.fetchedAt = time.Now()
	c.loaded = true
	return nil
}
