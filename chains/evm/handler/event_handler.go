package handler

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	commontypes "github.com/ClipFinance/bridge-relay/common/types"
)

// Constants for event handler timeouts and retry attempts.
const (
	contextTimeout       = 30 * time.Second // Timeout for context operations.
	reconnectTimeout     = 5 * time.Second  // Timeout for reconnect attempts.
	retryTimeout         = 5 * time.Minute  // Timeout for retry operations.
	maxReconnectAttempts = 3                // Maximum number of reconnect attempts.

	defaultRequestsPerSecond = 10
)

// Client is the subset of the Ethereum client used to follow bridge logs.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
}

// Checkpointer persists the last processed block of a chain.
type Checkpointer interface {
	TryLoadLatestBlock(ctx context.Context, chainNonce uint32) (uint64, bool, error)
	StoreBlock(ctx context.Context, chainNonce uint32, block uint64) error
}

// Option configures an EventHandler.
type Option func(*EventHandler)

// WithCheckpointer resumes the stream from, and records progress in, store.
func WithCheckpointer(store Checkpointer) Option {
	return func(h *EventHandler) { h.checkpoints = store }
}

// WithPollingInterval sets the HTTP polling interval.
func WithPollingInterval(interval time.Duration) Option {
	return func(h *EventHandler) {
		if interval > 0 {
			h.pollingInterval = interval
		}
	}
}

// WithRateLimit caps RPC requests issued while polling or backfilling.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(h *EventHandler) {
		if requestsPerSecond > 0 {
			h.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
		}
	}
}

// EventHandler follows the bridge contract logs of one chain and forwards
// them as raw events, in block and log order.
type EventHandler struct {
	parentCtx   context.Context               // Context the handler was started with.
	ctx         context.Context               // Context for managing lifecycle.
	cancel      context.CancelFunc            // Cancel function for context.
	chainConfig *commontypes.ChainConfig      // Chain configuration.
	logger      *logrus.Logger                // Logger for logging events.
	eventChan   chan<- commontypes.RawEvent   // Channel for raw chain events.
	checkpoints Checkpointer                  // Optional block checkpoint store.
	limiter     *rate.Limiter                 // Limiter for polling requests.
	bridge      common.Address                // Bridge contract address.
	mutex       sync.RWMutex                  // Guards client, subscription and mode.
	client      Client                        // Ethereum client.
	bridgeSub   *commontypes.LogSubscription  // Subscription for bridge events.
	polling     bool                          // Whether HTTP polling is used.

	lastProcessedBlock uint64        // Last processed block number.
	lastBlockMutex     sync.RWMutex  // Mutex for last processed block.
	pollingInterval    time.Duration // Interval between polls.
	pollingTicker      *time.Ticker  // Ticker for polling.

	workers sync.WaitGroup // Forwarding goroutines.
}

// NewEventHandler creates a new event handler instance.
//
// Parameters:
// - ctx: context for managing the lifecycle of the event handler.
// - config: the chain configuration.
// - logger: the logger for logging events.
// - client: the Ethereum client.
// - eventChan: the channel to receive raw chain events.
// - opts: optional settings.
//
// Returns:
// - *EventHandler: a new EventHandler instance.
func NewEventHandler(
	ctx context.Context,
	config *commontypes.ChainConfig,
	logger *logrus.Logger,
	client Client,
	eventChan chan<- commontypes.RawEvent,
	opts ...Option,
) *EventHandler {
	handlerCtx, cancel := context.WithCancel(ctx)

	handler := &EventHandler{
		parentCtx:       ctx,
		ctx:             handlerCtx,
		cancel:          cancel,
		chainConfig:     config,
		logger:          logger,
		client:          client,
		eventChan:       eventChan,
		bridge:          common.HexToAddress(config.BridgeAddress),
		bridgeSub:       &commontypes.LogSubscription{},
		limiter:         rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), 1),
		pollingInterval: defaultPollingInterval,
	}
	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

// UpdateClient swaps the Ethereum client and restarts the subscription or polling.
//
// Parameters:
// - client: the new Ethereum client.
func (h *EventHandler) UpdateClient(client Client) {
	h.mutex.Lock()
	h.cancel()
	h.bridgeSub.Close()
	if h.pollingTicker != nil {
		h.pollingTicker.Stop()
	}

	h.ctx, h.cancel = context.WithCancel(h.parentCtx)
	h.client = client
	polling := h.polling
	h.mutex.Unlock()

	if polling {
		if err := h.StartHTTPPolling(); err != nil {
			h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Failed to restart HTTP polling after client update")
		}
		return
	}

	if err := h.StartWSSubscription(); err != nil {
		h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Error("Failed to setup subscription after client update")
	}
}

// Stop stops the event handler, closes subscriptions and polling and waits
// for the forwarding goroutines to return.
func (h *EventHandler) Stop() {
	h.mutex.Lock()
	h.cancel()
	h.bridgeSub.Close()
	if h.pollingTicker != nil {
		h.pollingTicker.Stop()
	}
	h.mutex.Unlock()

	h.workers.Wait()
}

// LastProcessedBlock returns the last block whose logs were forwarded.
func (h *EventHandler) LastProcessedBlock() uint64 {
	h.lastBlockMutex.RLock()
	defer h.lastBlockMutex.RUnlock()
	return h.lastProcessedBlock
}

func (h *EventHandler) current() (context.Context, Client) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.ctx, h.client
}

func (h *EventHandler) bridgeQuery(fromBlock, toBlock uint64) ethereum.FilterQuery {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{h.bridge},
		Topics:    [][]common.Hash{BridgeTopics()},
	}
	if fromBlock > 0 {
		query.FromBlock = new(big.Int).SetUint64(fromBlock)
	}
	if toBlock > 0 {
		query.ToBlock = new(big.Int).SetUint64(toBlock)
	}
	return query
}

// resumeBlock returns the block after which the stream starts, or zero when
// the stream starts at the current head.
func (h *EventHandler) resumeBlock(ctx context.Context) uint64 {
	if h.checkpoints != nil {
		block, ok, err := h.checkpoints.TryLoadLatestBlock(ctx, uint32(h.chainConfig.Nonce))
		if err != nil {
			h.logger.WithField("chain", h.chainConfig.Name).WithError(err).Warn("Failed to load block checkpoint")
		} else if ok {
			return block
		}
	}
	if h.chainConfig.StartBlock > 0 {
		return h.chainConfig.StartBlock - 1
	}
	return 0
}

// deliver forwards a log as a raw event. It returns false once ctx is done.
func (h *EventHandler) deliver(ctx context.Context, log ethtypes.Log) bool {
	if log.Removed {
		h.logger.WithFields(logrus.Fields{
			"chain":  h.chainConfig.Name,
			"txHash": log.TxHash.Hex(),
			"block":  log.BlockNumber,
		}).Warn("Skipping log removed by reorg")
		return true
	}

	event := commontypes.RawEvent{
		ChainNonce:      h.chainConfig.Nonce,
		BlockNumber:     log.BlockNumber,
		BlockHash:       log.BlockHash.Hex(),
		TransactionHash: log.TxHash.Hex(),
		LogIndex:        log.Index,
		Data:            log,
	}

	if ctx.Err() != nil {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case h.eventChan <- event:
		return true
	}
}

// markProcessed records block as processed and stores the checkpoint.
func (h *EventHandler) markProcessed(ctx context.Context, block uint64) {
	h.lastBlockMutex.Lock()
	if block <= h.lastProcessedBlock {
		h.lastBlockMutex.Unlock()
		return
	}
	h.lastProcessedBlock = block
	h.lastBlockMutex.Unlock()

	if h.checkpoints == nil {
		return
	}
	if err := h.checkpoints.StoreBlock(ctx, uint32(h.chainConfig.Nonce), block); err != nil {
		h.logger.WithFields(logrus.Fields{
			"chain": h.chainConfig.Name,
			"block": block,
		}).WithError(err).Warn("Failed to store block checkpoint")
	}
}
