// Package submission drives a destination transaction to acceptance when the
// signing account may be used concurrently by other submitters.
//
// Each attempt is built from scratch out of an immutable template and a fresh
// stamp (sequence or blockhash). A stale-stamp rejection resynchronises the
// stamper and retries; any other failure ends the submission. Attempts are
// bounded and exhaustion is reported as ErrRetriesExhausted.
package submission

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
)

const (
	// DefaultMaxAttempts is the default number of attempts per submission.
	DefaultMaxAttempts = 5
	// DefaultRetryDelay is the default pause after a resync.
	DefaultRetryDelay = 500 * time.Millisecond
)

// SendFunc builds an attempt from template and stamp, signs and broadcasts it
// and returns the chain-native transaction handle. It must not mutate template.
type SendFunc[T, S any] func(ctx context.Context, template T, stamp S) (string, error)

// SettleFunc inspects a broadcast transaction after the settle delay and
// returns an error when it was displaced by a sequence race.
type SettleFunc func(ctx context.Context, handle string) error

// StaleClassifier reports whether err means the attempt carried a stale stamp.
type StaleClassifier func(err error) bool

// Option configures a Protocol.
type Option func(*options)

type options struct {
	maxAttempts int
	retryDelay  time.Duration
	settleDelay time.Duration
	settle      SettleFunc
}

// WithMaxAttempts caps the number of attempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause between a resync and the next attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) { o.retryDelay = d }
}

// WithSettle enables a post-broadcast check run after delay.
func WithSettle(delay time.Duration, settle SettleFunc) Option {
	return func(o *options) {
		o.settleDelay = delay
		o.settle = settle
	}
}

// Protocol submits templates of type T stamped with tokens of type S.
type Protocol[T, S any] struct {
	chainName string
	logger    *logrus.Logger
	stamper   Stamper[S]
	send      SendFunc[T, S]
	isStale   StaleClassifier
	options
}

// NewProtocol creates a new submission protocol instance.
//
// Parameters:
// - chainName: the chain name used in log entries.
// - logger: the logger for logging purposes.
// - stamper: the source of freshness tokens for the signing account.
// - send: builds, signs and broadcasts one attempt.
// - isStale: classifies stale-stamp rejections.
// - opts: optional settings.
//
// Returns:
// - *Protocol[T, S]: the new protocol instance.
func NewProtocol[T, S any](
	chainName string,
	logger *logrus.Logger,
	stamper Stamper[S],
	send SendFunc[T, S],
	isStale StaleClassifier,
	opts ...Option,
) *Protocol[T, S] {
	o := options{
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Protocol[T, S]{
		chainName: chainName,
		logger:    logger,
		stamper:   stamper,
		send:      send,
		isStale:   isStale,
		options:   o,
	}
}

// Submit drives template to acceptance.
//
// Parameters:
// - ctx: the context for managing the request.
// - template: the unsigned transaction template.
//
// Returns:
// - string: the handle of the accepted attempt.
// - error: the first non-stale failure, a resync failure, or ErrRetriesExhausted.
func (p *Protocol[T, S]) Submit(ctx context.Context, template T) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		stamp, err := p.stamper.Reserve(ctx)
		if err != nil {
			return "", errors.Wrap(err, "failed to reserve stamp")
		}

		handle, err := p.send(ctx, template, stamp)
		if err == nil && p.settle != nil {
			err = p.settleAttempt(ctx, handle)
		}
		if err == nil {
			return handle, nil
		}

		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), "submission cancelled")
		}

		if !p.isStale(err) {
			p.stamper.Invalidate()
			return "", errors.Wrap(err, "failed to submit transaction")
		}

		lastErr = err
		p.logger.WithFields(logrus.Fields{
			"chain":   p.chainName,
			"attempt": attempt,
		}).WithError(err).Warn("Stale stamp, resynchronising")

		if err := p.stamper.Resync(ctx); err != nil {
			return "", errors.Wrap(err, "failed to resync stamp")
		}

		if attempt < p.maxAttempts {
			if err := sleep(ctx, p.retryDelay); err != nil {
				return "", errors.Wrap(err, "submission cancelled")
			}
		}
	}

	return "", errors.Wrapf(commonerrors.ErrRetriesExhausted, "%d attempts on %s, last error: %v", p.maxAttempts, p.chainName, lastErr)
}

func (p *Protocol[T, S]) settleAttempt(ctx context.Context, handle string) error {
	if err := sleep(ctx, p.settleDelay); err != nil {
		return err
	}
	return p.settle(ctx, handle)
}

// ContainsAny returns a StaleClassifier matching any of the given
// case-insensitive error message fragments.
func ContainsAny(fragments ...string) StaleClassifier {
	return func(err error) bool {
		if err == nil {
			return false
		}
		msg := strings.ToLower(err.Error())
		for _, fragment := range fragments {
			if strings.Contains(msg, strings.ToLower(fragment)) {
				return true
			}
		}
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
