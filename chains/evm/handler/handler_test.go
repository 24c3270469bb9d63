package handler

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClipFinance/bridge-relay/chains/evm/generated"
	commontypes "github.com/ClipFinance/bridge-relay/common/types"
)

const bridgeAddress = "0x00000000000000000000000000000000000000B1"

type fakeClient struct {
	mutex   sync.Mutex
	head    uint64
	logs    []ethtypes.Log
	queries []ethereum.FilterQuery
}

func (c *fakeClient) BlockNumber(context.Context) (uint64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.head, nil
}

func (c *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.queries = append(c.queries, q)

	var out []ethtypes.Log
	for _, log := range c.logs {
		if log.BlockNumber >= q.FromBlock.Uint64() && log.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, log)
		}
	}
	return out, nil
}

func (c *fakeClient) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- ethtypes.Log) (ethereum.Subscription, error) {
	return nil, errors.New("subscriptions not supported")
}

type memoryCheckpoints struct {
	mutex  sync.Mutex
	blocks map[uint32]uint64
}

func (m *memoryCheckpoints) TryLoadLatestBlock(_ context.Context, nonce uint32) (uint64, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	block, ok := m.blocks[nonce]
	return block, ok, nil
}

func (m *memoryCheckpoints) StoreBlock(_ context.Context, nonce uint32, block uint64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.blocks[nonce] = block
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func bridgeLog(block uint64, index uint) ethtypes.Log {
	return ethtypes.Log{
		Address:     common.HexToAddress(bridgeAddress),
		Topics:      []common.Hash{crypto.Keccak256Hash([]byte(TransferSignature))},
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(common.Big1),
	}
}

func newTestHandler(client Client, store Checkpointer, startBlock uint64) (*EventHandler, chan commontypes.RawEvent) {
	events := make(chan commontypes.RawEvent, 16)
	config := &commontypes.ChainConfig{
		Name:          "ethereum",
		Nonce:         1,
		BridgeAddress: bridgeAddress,
		StartBlock:    startBlock,
	}
	opts := []Option{WithRateLimit(1000)}
	if store != nil {
		opts = append(opts, WithCheckpointer(store))
	}
	return NewEventHandler(context.Background(), config, quietLogger(), client, events, opts...), events
}

func TestBridgeTopicsMatchABI(t *testing.T) {
	parsed, err := generated.ParseBridgeABI()
	require.NoError(t, err)

	assert.Equal(t, []common.Hash{
		parsed.Events[generated.EventTransfer].ID,
		parsed.Events[generated.EventUnfreeze].ID,
		parsed.Events[generated.EventTransferErc721].ID,
		parsed.Events[generated.EventTransferErc1155].ID,
		parsed.Events[generated.EventUnfreezeNft].ID,
	}, BridgeTopics())
}

func TestPollEventsStartsAtHeadAndForwardsNewLogs(t *testing.T) {
	client := &fakeClient{head: 100}
	store := &memoryCheckpoints{blocks: map[uint32]uint64{}}
	h, events := newTestHandler(client, store, 0)
	ctx := context.Background()

	require.NoError(t, h.pollEvents(ctx))
	assert.Equal(t, uint64(100), h.LastProcessedBlock())
	assert.Empty(t, client.queries)

	client.head = 105
	client.logs = []ethtypes.Log{bridgeLog(99, 0), bridgeLog(103, 0), bridgeLog(103, 1)}

	require.NoError(t, h.pollEvents(ctx))
	require.Len(t, client.queries, 1)
	query := client.queries[0]
	assert.Equal(t, uint64(101), query.FromBlock.Uint64())
	assert.Equal(t, uint64(105), query.ToBlock.Uint64())
	assert.Equal(t, []common.Address{common.HexToAddress(bridgeAddress)}, query.Addresses)
	assert.Equal(t, [][]common.Hash{BridgeTopics()}, query.Topics)

	require.Len(t, events, 2)
	first := <-events
	assert.Equal(t, commontypes.ChainNonce(1), first.ChainNonce)
	assert.Equal(t, uint64(103), first.BlockNumber)
	assert.Equal(t, uint(0), first.LogIndex)
	assert.IsType(t, ethtypes.Log{}, first.Data)
	second := <-events
	assert.Equal(t, uint(1), second.LogIndex)

	assert.Equal(t, uint64(105), store.blocks[1])
}

func TestPollEventsResumesFromCheckpoint(t *testing.T) {
	client := &fakeClient{head: 60, logs: []ethtypes.Log{bridgeLog(55, 0)}}
	store := &memoryCheckpoints{blocks: map[uint32]uint64{1: 50}}
	h, events := newTestHandler(client, store, 10)

	h.lastProcessedBlock = h.resumeBlock(context.Background())
	require.NoError(t, h.pollEvents(context.Background()))

	require.Len(t, client.queries, 1)
	assert.Equal(t, uint64(51), client.queries[0].FromBlock.Uint64())
	assert.Len(t, events, 1)
	assert.Equal(t, uint64(60), store.blocks[1])
}

func TestResumeBlockFallsBackToStartBlock(t *testing.T) {
	h, _ := newTestHandler(&fakeClient{}, nil, 10)
	assert.Equal(t, uint64(9), h.resumeBlock(context.Background()))

	h, _ = newTestHandler(&fakeClient{}, nil, 0)
	assert.Zero(t, h.resumeBlock(context.Background()))
}

func TestPollEventsCapsBlockRange(t *testing.T) {
	client := &fakeClient{head: 5000}
	h, _ := newTestHandler(client, nil, 0)
	h.lastProcessedBlock = 1

	require.NoError(t, h.pollEvents(context.Background()))
	require.Len(t, client.queries, 1)
	assert.Equal(t, uint64(2), client.queries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(1001), client.queries[0].ToBlock.Uint64())
	assert.Equal(t, uint64(1001), h.LastProcessedBlock())
}

func TestBackfillChunksAndSkipsRemovedLogs(t *testing.T) {
	removed := bridgeLog(1500, 0)
	removed.Removed = true
	client := &fakeClient{logs: []ethtypes.Log{bridgeLog(10, 0), removed, bridgeLog(2400, 3)}}
	h, events := newTestHandler(client, nil, 0)

	require.NoError(t, h.backfill(context.Background(), client, 0, 2500))

	require.Len(t, client.queries, 3)
	assert.Equal(t, uint64(1), client.queries[0].FromBlock.Uint64())
	assert.Equal(t, uint64(1000), client.queries[0].ToBlock.Uint64())
	assert.Equal(t, uint64(2001), client.queries[2].FromBlock.Uint64())
	assert.Equal(t, uint64(2500), client.queries[2].ToBlock.Uint64())
	assert.Len(t, events, 2)
	assert.Equal(t, uint64(2500), h.LastProcessedBlock())
}

func TestHandleLiveLogSkipsBackfilledBlocks(t *testing.T) {
	h, events := newTestHandler(&fakeClient{}, nil, 0)
	h.lastProcessedBlock = 200

	h.handleLiveLog(context.Background(), bridgeLog(200, 0))
	assert.Empty(t, events)

	h.handleLiveLog(context.Background(), bridgeLog(201, 0))
	h.handleLiveLog(context.Background(), bridgeLog(201, 1))
	assert.Len(t, events, 2)
	assert.Equal(t, uint64(200), h.LastProcessedBlock())
}
