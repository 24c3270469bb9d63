package handler

import (
	"context"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// StartWSSubscription subscribes to bridge logs and forwards them in a separate goroutine.
// Blocks missed since the checkpoint are backfilled before the subscription is opened.
//
// Returns:
// - error: an error if any issue occurs during the subscription setup.
func (h *EventHandler) StartWSSubscription() error {
	h.mutex.Lock()
	h.polling = false
	h.mutex.Unlock()

	ctx, client := h.current()

	h.lastBlockMutex.RLock()
	resumed := h.lastProcessedBlock
	h.lastBlockMutex.RUnlock()
	if resumed == 0 {
		resumed = h.resumeBlock(ctx)
	}

	if resumed > 0 {
		head, err := client.BlockNumber(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to get block number")
		}
		if err := h.backfill(ctx, client, resumed, head); err != nil {
			return errors.Wrap(err, "failed to backfill bridge logs")
		}
	}

	if err := h.setupSubscription(ctx); err != nil {
		return errors.Wrap(err, "failed to setup subscription")
	}

	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		h.handleEvents(ctx)
	}()

	return nil
}

// reconnectSubscription re-establishes the bridge subscription.
// It retries up to a maximum number of attempts, then waits for the retry timeout and starts over.
//
// Parameters:
// - ctx: the handler context.
//
// Returns:
// - error: an error if the context is cancelled.
func (h *EventHandler) reconnectSubscription(ctx context.Context) error {
	h.bridgeSub.Close()

	for {
		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			if ctx.Err() != nil {
				return errors.New("context cancelled during reconnection")
			}

			h.logger.WithFields(logrus.Fields{
				"chain":   h.chainConfig.Name,
				"attempt": attempt,
			}).Info("Attempting to reconnect subscription")

			err := h.setupSubscription(ctx)
			if err == nil {
				h.logger.WithField("chain", h.chainConfig.Name).Info("Successfully reconnected subscription")
				return nil
			}
			h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Failed to reconnect subscription")

			wait := reconnectTimeout
			if attempt == maxReconnectAttempts {
				h.logger.WithField("chain", h.chainConfig.Name).Warn("Max reconnect attempts reached, waiting for retry timeout")
				wait = retryTimeout
			}

			select {
			case <-ctx.Done():
				return errors.New("context cancelled during reconnection")
			case <-time.After(wait):
			}
		}
	}
}

// handleEvents forwards subscription logs and reconnects on subscription errors.
func (h *EventHandler) handleEvents(ctx context.Context) {
	for {
		h.bridgeSub.Lock()
		sub, logs := h.bridgeSub.Subscription, h.bridgeSub.EventChan
		h.bridgeSub.Unlock()

		if sub == nil {
			return
		}

		select {
		case <-ctx.Done():
			return

		case err := <-sub.Err():
			if ctx.Err() != nil {
				return
			}
			h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Bridge subscription error")
			if err := h.reconnectSubscription(ctx); err != nil {
				h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Failed to reconnect bridge subscription")
				return
			}

		case log := <-logs:
			h.handleLiveLog(ctx, log)
		}
	}
}

// handleLiveLog forwards a subscription log unless its block was already backfilled.
func (h *EventHandler) handleLiveLog(ctx context.Context, log ethtypes.Log) {
	if log.BlockNumber <= h.LastProcessedBlock() {
		return
	}

	if !h.deliver(ctx, log) {
		return
	}

	// The checkpoint trails by one block since more logs of the current block may follow.
	if log.BlockNumber > 0 {
		h.markProcessed(ctx, log.BlockNumber-1)
	}
}

// setupSubscription opens the bridge log subscription.
//
// Parameters:
// - ctx: the handler context.
//
// Returns:
// - error: an error if any issue occurs during the subscription setup.
func (h *EventHandler) setupSubscription(ctx context.Context) error {
	h.bridgeSub.Lock()
	defer h.bridgeSub.Unlock()

	if h.bridgeSub.Subscription != nil {
		h.logger.WithField("chain", h.chainConfig.Name).Info("Closing bridge subscription")
		h.bridgeSub.Subscription.Unsubscribe()
		h.bridgeSub.Subscription = nil
	}

	_, client := h.current()
	setupCtx, cancel := context.WithTimeout(ctx, contextTimeout)
	defer cancel()

	blockNumber, err := client.BlockNumber(setupCtx)
	if err != nil {
		return errors.Wrap(err, "failed to get block number")
	}

	eventChan := make(chan ethtypes.Log)
	sub, err := client.SubscribeFilterLogs(ctx, h.bridgeQuery(blockNumber, 0), eventChan)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to bridge events")
	}

	h.bridgeSub.Subscription = sub
	h.bridgeSub.EventChan = eventChan

	h.logger.WithFields(logrus.Fields{
		"chain":       h.chainConfig.Name,
		"blockNumber": blockNumber,
	}).Info("Bridge subscription established")

	return nil
}
