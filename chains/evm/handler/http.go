package handler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// defaultPollingInterval is the default interval for polling events.
	defaultPollingInterval = 5 * time.Second
	// maxBlockRange is the maximum number of blocks to fetch in a single poll.
	maxBlockRange = uint64(1000)
)

// StartHTTPPolling starts polling bridge logs.
// It resumes from the checkpoint when one exists and processes events in a separate goroutine.
//
// Returns:
// - error: an error if any issue occurs during the polling setup.
func (h *EventHandler) StartHTTPPolling() error {
	ctx, _ := h.current()

	h.lastBlockMutex.Lock()
	if h.lastProcessedBlock == 0 {
		h.lastProcessedBlock = h.resumeBlock(ctx)
	}
	from := h.lastProcessedBlock
	h.lastBlockMutex.Unlock()

	h.mutex.Lock()
	h.polling = true
	h.pollingTicker = time.NewTicker(h.pollingInterval)
	ticker := h.pollingTicker
	h.mutex.Unlock()

	h.logger.WithFields(logrus.Fields{
		"chain":     h.chainConfig.Name,
		"interval":  h.pollingInterval,
		"fromBlock": from,
	}).Info("Start polling bridge events")

	h.workers.Add(1)
	go func() {
		defer h.workers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.pollEvents(ctx); err != nil {
					h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Error polling events")
				}
			}
		}
	}()

	return nil
}

// pollEvents processes the blocks produced since the last poll, at most maxBlockRange at a time.
//
// Parameters:
// - ctx: the context bounding the poll.
//
// Returns:
// - error: an error if any issue occurs during event polling.
func (h *EventHandler) pollEvents(ctx context.Context) error {
	_, client := h.current()

	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	currentBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get current block number")
	}

	fromBlock := h.LastProcessedBlock()

	if fromBlock == 0 {
		h.markProcessed(ctx, currentBlock)
		return nil
	}

	if currentBlock <= fromBlock {
		return nil
	}

	toBlock := fromBlock + maxBlockRange
	if toBlock > currentBlock {
		toBlock = currentBlock
	}

	if err := h.processBlockRange(ctx, client, fromBlock+1, toBlock); err != nil {
		return errors.Wrap(err, "failed to process block range")
	}

	h.markProcessed(ctx, toBlock)

	return nil
}

// processBlockRange fetches the bridge logs of a block range and forwards them.
//
// Parameters:
// - ctx: the context bounding the request.
// - client: the Ethereum client.
// - fromBlock: the starting block number.
// - toBlock: the ending block number.
//
// Returns:
// - error: an error if the logs cannot be fetched or ctx is done.
func (h *EventHandler) processBlockRange(ctx context.Context, client Client, fromBlock, toBlock uint64) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}

	logs, err := client.FilterLogs(ctx, h.bridgeQuery(fromBlock, toBlock))
	if err != nil {
		return errors.Wrap(err, "failed to get bridge logs")
	}

	for _, log := range logs {
		if !h.deliver(ctx, log) {
			return ctx.Err()
		}
	}

	h.logger.WithFields(logrus.Fields{
		"chain":     h.chainConfig.Name,
		"fromBlock": fromBlock,
		"toBlock":   toBlock,
		"logs":      len(logs),
	}).Debug("Processed block range")

	return nil
}

// backfill forwards the logs of (fromBlock, toBlock] in maxBlockRange chunks.
func (h *EventHandler) backfill(ctx context.Context, client Client, fromBlock, toBlock uint64) error {
	for start := fromBlock + 1; start <= toBlock; start += maxBlockRange {
		end := start + maxBlockRange - 1
		if end > toBlock {
			end = toBlock
		}
		if err := h.processBlockRange(ctx, client, start, end); err != nil {
			return err
		}
		h.markProcessed(ctx, end)
	}
	return nil
}
