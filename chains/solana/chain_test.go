package solana

import (
	"context"
	"encoding/binary"
	"io"
	"math/big"
	"sync"
	"testing"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/nft"
	"github.com/ClipFinance/bridge-relay/common/types"
	"github.com/ClipFinance/bridge-relay/submission"
)

const selfNonce = types.ChainNonce(3)

type fakeRPC struct {
	mutex       sync.Mutex
	blockhashes []sol.Hash
	sendErrs    []error
	attempts    []*sol.Transaction
	signatures  []*rpc.TransactionSignature // Newest first.
	logs        map[sol.Signature][]string
}

func (f *fakeRPC) GetHealth(context.Context) (string, error) { return healthOK, nil }

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	hash := f.blockhashes[0]
	if len(f.blockhashes) > 1 {
		f.blockhashes = f.blockhashes[1:]
	}
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: hash}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *sol.Transaction, _ rpc.TransactionOpts) (sol.Signature, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.attempts = append(f.attempts, tx)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return sol.Signature{}, err
		}
	}
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignaturesForAddressWithOpts(_ context.Context, _ sol.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	var out []*rpc.TransactionSignature
	started := opts.Before == (sol.Signature{})
	for _, sig := range f.signatures {
		if !started {
			started = sig.Signature == opts.Before
			continue
		}
		if sig.Signature == opts.Until {
			break
		}
		out = append(out, sig)
		if opts.Limit != nil && len(out) == *opts.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRPC) GetTransaction(_ context.Context, sig sol.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return &rpc.GetTransactionResult{Meta: &rpc.TransactionMeta{LogMessages: f.logs[sig]}}, nil
}

func (f *fakeRPC) Close() error { return nil }

func (f *fakeRPC) push(sig sol.Signature, slot uint64, failed bool, logs []string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	entry := &rpc.TransactionSignature{Signature: sig, Slot: slot}
	if failed {
		entry.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	}
	f.signatures = append([]*rpc.TransactionSignature{entry}, f.signatures...)
	f.logs[sig] = logs
}

type memoryCheckpoints struct {
	mutex sync.Mutex
	slots map[uint32]uint64
}

func (m *memoryCheckpoints) TryLoadLatestBlock(_ context.Context, nonce uint32) (uint64, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	slot, ok := m.slots[nonce]
	return slot, ok, nil
}

func (m *memoryCheckpoints) StoreBlock(_ context.Context, nonce uint32, slot uint64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.slots[nonce] = slot
	return nil
}

type fakeSubscription struct {
	results chan *ws.LogResult
}

func (f *fakeSubscription) Recv(ctx context.Context) (*ws.LogResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-f.results:
		return r, nil
	}
}

func (f *fakeSubscription) Unsubscribe() {}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newKey(t *testing.T) sol.PrivateKey {
	t.Helper()
	key, err := sol.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func newTestSolana(t *testing.T, client *fakeRPC, opts ...Option) (*solana, sol.PrivateKey) {
	t.Helper()

	config := &types.ChainConfig{
		Name:          "solana",
		ChainType:     types.SOLANA,
		Nonce:         selfNonce,
		BridgeAddress: newKey(t).PublicKey().String(),
	}
	opts = append([]Option{WithSubmissionOptions(submission.WithRetryDelay(0))}, opts...)

	s, err := newSolana(config, quietLogger(), client, opts...)
	require.NoError(t, err)

	key := newKey(t)
	s.setSigner(key)
	return s, key
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		blockhashes: []sol.Hash{{1}},
		logs:        make(map[sol.Signature][]string),
	}
}

func bridgeLogs(t *testing.T, program sol.PublicKey, events ...programEvent) []string {
	t.Helper()
	logs := []string{"Program " + program.String() + " invoke [1]", "Program log: Instruction: Bridge"}
	for _, ev := range events {
		line, err := encodeProgramEvent(ev)
		require.NoError(t, err)
		logs = append(logs, programDataPrefix+line)
	}
	return append(logs, "Program "+program.String()+" success")
}

func TestBridgeDataLinesFollowsInvocationStack(t *testing.T) {
	bridge := newKey(t).PublicKey()
	other := newKey(t).PublicKey()

	logs := []string{
		"Program " + bridge.String() + " invoke [1]",
		"Program log: Instruction: Transfer",
		"Program " + other.String() + " invoke [2]",
		"Program data: T1RIRVI=",
		"Program " + other.String() + " success",
		"Program data: QQ==",
		"Program " + bridge.String() + " consumed 5000 of 200000 compute units",
		"Program " + bridge.String() + " success",
		"Program data: Qg==",
		"Program " + other.String() + " invoke [1]",
		"Program data: Qw==",
		"Program " + other.String() + " failed: custom program error: 0x1",
	}

	assert.Equal(t, []string{"QQ=="}, bridgeDataLines(logs, bridge))
	assert.Equal(t, []string{"T1RIRVI=", "Qw=="}, bridgeDataLines(logs, other))
}

func TestDecodeTransfer(t *testing.T) {
	s, _ := newTestSolana(t, newFakeRPC())
	amount := new(big.Int).Lsh(big.NewInt(1), 100)

	logs := bridgeLogs(t, s.program,
		programEvent{Kind: eventUnfreeze, ActionID: big.NewInt(1), ChainNonce: 9, To: "0xaa", Amount: big.NewInt(5)},
		programEvent{Kind: eventTransfer, ActionID: big.NewInt(7), ChainNonce: 2, To: "0xbb", Amount: amount},
	)

	ev, err := s.DecodeEvent(types.RawEvent{LogIndex: 1, Data: programLogs{Logs: logs}})
	require.NoError(t, err)
	assert.Equal(t, types.NewTransfer(big.NewInt(7), 2, "0xbb", amount), ev)

	ev, err = s.DecodeEvent(types.RawEvent{LogIndex: 0, Data: programLogs{Logs: logs}})
	require.NoError(t, err)
	assert.Equal(t, types.NewUnfreeze(big.NewInt(1), 9, "0xaa", big.NewInt(5)), ev)
}

func TestDecodeTransferUniqueProducesOpaquePointer(t *testing.T) {
	s, _ := newTestSolana(t, newFakeRPC())
	mint := newKey(t).PublicKey()

	logs := bridgeLogs(t, s.program, programEvent{
		Kind: eventTransferUnique, ActionID: big.NewInt(8), ChainNonce: 2, To: "0xcc", Mint: mint, URI: "https://meta.example/nft/5",
	})

	ev, err := s.DecodeEvent(types.RawEvent{Data: programLogs{Logs: logs}})
	require.NoError(t, err)

	unique, ok := ev.(types.TransferUnique)
	require.True(t, ok)
	assert.Equal(t, "https://meta.example/nft/5", unique.NftURI())

	pointer, err := nft.DecodeOpaque(unique.NftPointer())
	require.NoError(t, err)
	assert.Equal(t, uint32(selfNonce), pointer.ChainNonce)
	assert.Equal(t, mint.Bytes(), pointer.Payload)
}

func TestDecodeUnfreezeUniqueKeepsPointerBytes(t *testing.T) {
	s, _ := newTestSolana(t, newFakeRPC())
	pointer, err := nft.EncodeEvm(nft.EvmPointer{Kind: nft.ERC721, TokenID: "4", Contract: "0x00000000000000000000000000000000000000C3"})
	require.NoError(t, err)

	logs := bridgeLogs(t, s.program, programEvent{
		Kind: eventUnfreezeUnique, ActionID: big.NewInt(9), ChainNonce: 2, To: "0xdd", NftData: pointer,
	})

	ev, err := s.DecodeEvent(types.RawEvent{Data: programLogs{Logs: logs}})
	require.NoError(t, err)
	assert.Equal(t, types.NewUnfreezeUnique(big.NewInt(9), 2, "0xdd", pointer), ev)
}

func TestDecodeIgnoresForeignPrograms(t *testing.T) {
	s, _ := newTestSolana(t, newFakeRPC())
	other := newKey(t).PublicKey()

	logs := bridgeLogs(t, other, programEvent{Kind: eventTransfer, ActionID: big.NewInt(1), ChainNonce: 2, To: "0xaa", Amount: big.NewInt(1)})

	ev, err := s.DecodeEvent(types.RawEvent{Data: programLogs{Logs: logs}})
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeRejectsCorruptPayloads(t *testing.T) {
	s, _ := newTestSolana(t, newFakeRPC())
	header := "Program " + s.program.String() + " invoke [1]"

	for name, line := range map[string]string{
		"base64":        "Program data: !!!",
		"discriminator": "Program data: CQ==",
		"truncated":     "Program data: AAEC",
	} {
		_, err := s.DecodeEvent(types.RawEvent{Data: programLogs{Logs: []string{header, line}}})
		assert.True(t, errors.Is(err, commonerrors.ErrDecode), name)
	}

	valid, err := encodeProgramEvent(programEvent{Kind: eventTransfer, ActionID: big.NewInt(1), ChainNonce: 2, To: "0xaa", Amount: big.NewInt(1)})
	require.NoError(t, err)
	trailing := bridgeLogs(t, s.program)
	trailing = append(trailing[:2], "Program data: "+valid+"AA==")
	_, err = s.DecodeEvent(types.RawEvent{Data: programLogs{Logs: trailing}})
	assert.True(t, errors.Is(err, commonerrors.ErrDecode))

	_, err = s.DecodeEvent(types.RawEvent{Data: []string{"not programLogs"}})
	assert.True(t, errors.Is(err, commonerrors.ErrDecode))
}

func TestSubmitTransferRetriesExpiredBlockhash(t *testing.T) {
	client := newFakeRPC()
	client.blockhashes = []sol.Hash{{1}, {2}}
	client.sendErrs = []error{errors.New("Transaction simulation failed: Blockhash not found")}
	s, key := newTestSolana(t, client)
	recipient := newKey(t).PublicKey()

	result, err := s.SubmitTransfer(context.Background(), types.NewTransfer(big.NewInt(7), selfNonce, recipient.String(), big.NewInt(500)), 1)
	require.NoError(t, err)

	require.Len(t, client.attempts, 2)
	first, second := client.attempts[0], client.attempts[1]
	assert.Equal(t, sol.Hash{1}, first.Message.RecentBlockhash)
	assert.Equal(t, sol.Hash{2}, second.Message.RecentBlockhash)
	assert.Equal(t, second.Signatures[0].String(), result.TxHash)
	assert.Equal(t, key.PublicKey(), second.Message.AccountKeys[0])

	require.Len(t, second.Message.Instructions, 3)
	data := []byte(second.Message.Instructions[2].Data)
	assert.Equal(t, []byte(first.Message.Instructions[2].Data), data)
	assert.Equal(t, ixValidateTransfer, data[0])
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[17:21]))
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(data[21:29]))
	assert.Contains(t, second.Message.AccountKeys, recipient)
}

func TestSigningIsDeterministic(t *testing.T) {
	s, key := newTestSolana(t, newFakeRPC())

	instruction, err := s.buildBridgeInstruction(key.PublicKey(), bridgeInstruction{
		Kind: ixValidateUnfreeze, ActionID: big.NewInt(3), Amount: big.NewInt(4),
	}, newKey(t).PublicKey())
	require.NoError(t, err)
	tpl, err := newTemplate(instruction)
	require.NoError(t, err)

	a, err := buildTransaction(tpl, sol.Hash{9}, key)
	require.NoError(t, err)
	b, err := buildTransaction(tpl, sol.Hash{9}, key)
	require.NoError(t, err)
	assert.Equal(t, a.Signatures, b.Signatures)
}

func TestSubmitFailsFastOnProgramError(t *testing.T) {
	client := newFakeRPC()
	client.sendErrs = []error{errors.New("custom program error: 0x0")}
	s, _ := newTestSolana(t, client)

	_, err := s.SubmitUnfreeze(context.Background(), types.NewUnfreeze(big.NewInt(7), selfNonce, newKey(t).PublicKey().String(), big.NewInt(5)), 1)
	require.Error(t, err)
	assert.Len(t, client.attempts, 1)
}

func TestSubmitTransferUniqueReturnsMetadataUpdate(t *testing.T) {
	client := newFakeRPC()
	s, _ := newTestSolana(t, client)
	pointer, err := nft.EncodeEvm(nft.EvmPointer{Kind: nft.ERC1155, TokenID: "11", Contract: "0x00000000000000000000000000000000000000C3"})
	require.NoError(t, err)

	ev := types.NewTransferUnique(big.NewInt(12), selfNonce, newKey(t).PublicKey().String(), pointer, "https://meta.example/nft/77")
	result, err := s.SubmitTransferUnique(context.Background(), ev, 2)
	require.NoError(t, err)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, "77", result.Metadata.ID)
	assert.Len(t, client.attempts, 1)
}

func TestSubmitUnfreezeUniqueRequiresOwnPointer(t *testing.T) {
	client := newFakeRPC()
	s, _ := newTestSolana(t, client)
	recipient := newKey(t).PublicKey().String()
	mint := newKey(t).PublicKey()

	foreign, err := nft.EncodeOpaque(nft.OpaquePointer{ChainNonce: 9, Payload: mint.Bytes()})
	require.NoError(t, err)
	_, err = s.SubmitUnfreezeUnique(context.Background(), types.NewUnfreezeUnique(big.NewInt(1), selfNonce, recipient, foreign), 2)
	assert.True(t, errors.Is(err, commonerrors.ErrUnknownPointerShape))

	evmPointer, err := nft.EncodeEvm(nft.EvmPointer{Kind: nft.ERC721, TokenID: "1", Contract: "0x00000000000000000000000000000000000000C3"})
	require.NoError(t, err)
	_, err = s.SubmitUnfreezeUnique(context.Background(), types.NewUnfreezeUnique(big.NewInt(1), selfNonce, recipient, evmPointer), 2)
	assert.True(t, errors.Is(err, commonerrors.ErrUnknownPointerShape))
	assert.Empty(t, client.attempts)

	own, err := nft.EncodeOpaque(nft.OpaquePointer{ChainNonce: uint32(selfNonce), Payload: mint.Bytes()})
	require.NoError(t, err)
	_, err = s.SubmitUnfreezeUnique(context.Background(), types.NewUnfreezeUnique(big.NewInt(1), selfNonce, recipient, own), 2)
	require.NoError(t, err)
	require.Len(t, client.attempts, 1)
	assert.Contains(t, client.attempts[0].Message.AccountKeys, mint)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	client := newFakeRPC()
	s, _ := newTestSolana(t, client)

	_, err := s.SubmitTransfer(context.Background(), types.NewTransfer(big.NewInt(1), selfNonce, "0xnot-base58", big.NewInt(1)), 1)
	require.Error(t, err)

	tooLarge := new(big.Int).Lsh(big.NewInt(1), 130)
	_, err = s.SubmitTransfer(context.Background(), types.NewTransfer(big.NewInt(1), selfNonce, newKey(t).PublicKey().String(), tooLarge), 1)
	require.Error(t, err)
	assert.Empty(t, client.attempts)
}

func TestPollResumesFromCheckpoint(t *testing.T) {
	client := newFakeRPC()
	checkpoints := &memoryCheckpoints{slots: map[uint32]uint64{uint32(selfNonce): 10}}
	s, _ := newTestSolana(t, client, WithCheckpointer(checkpoints))

	event := programEvent{Kind: eventTransfer, ActionID: big.NewInt(7), ChainNonce: 2, To: "0xbb", Amount: big.NewInt(500)}
	client.push(sol.Signature{10}, 10, false, bridgeLogs(t, s.program, event))
	client.push(sol.Signature{11}, 11, true, bridgeLogs(t, s.program, event))
	client.push(sol.Signature{12}, 12, false, bridgeLogs(t, s.program, event, event))

	events := make(chan types.RawEvent, 10)
	st := newEventStream(context.Background(), s, events)
	require.NoError(t, st.poll(context.Background()))

	require.Len(t, events, 2)
	first := <-events
	second := <-events
	assert.Equal(t, sol.Signature{12}.String(), first.TransactionHash)
	assert.Equal(t, uint64(12), first.BlockNumber)
	assert.Equal(t, uint(0), first.LogIndex)
	assert.Equal(t, uint(1), second.LogIndex)
	assert.Equal(t, selfNonce, first.ChainNonce)

	assert.Equal(t, uint64(12), st.LastProcessedSlot())
	assert.Equal(t, uint64(12), checkpoints.slots[uint32(selfNonce)])

	require.NoError(t, st.poll(context.Background()))
	assert.Empty(t, events)
}

func TestPollStartsAtHead(t *testing.T) {
	client := newFakeRPC()
	s, _ := newTestSolana(t, client)
	event := programEvent{Kind: eventTransfer, ActionID: big.NewInt(7), ChainNonce: 2, To: "0xbb", Amount: big.NewInt(500)}
	client.push(sol.Signature{1}, 5, false, bridgeLogs(t, s.program, event))

	events := make(chan types.RawEvent, 10)
	st := newEventStream(context.Background(), s, events)
	require.NoError(t, st.poll(context.Background()))
	assert.Empty(t, events)
	assert.Equal(t, uint64(5), st.LastProcessedSlot())

	client.push(sol.Signature{2}, 6, false, bridgeLogs(t, s.program, event))
	require.NoError(t, st.poll(context.Background()))
	require.Len(t, events, 1)
	assert.Equal(t, sol.Signature{2}.String(), (<-events).TransactionHash)
}

func TestSubscriptionDeliversEachTransactionOnce(t *testing.T) {
	client := newFakeRPC()
	s, _ := newTestSolana(t, client)
	s.config.WsUrl = "ws://solana.invalid"

	sub := &fakeSubscription{results: make(chan *ws.LogResult, 4)}
	s.subscribe = func(context.Context) (logSubscription, func(), error) {
		return sub, func() {}, nil
	}

	event := programEvent{Kind: eventTransfer, ActionID: big.NewInt(7), ChainNonce: 2, To: "0xbb", Amount: big.NewInt(500)}
	result := func(sig sol.Signature, slot uint64, failed bool) *ws.LogResult {
		r := &ws.LogResult{}
		r.Context.Slot = slot
		r.Value.Signature = sig
		r.Value.Logs = bridgeLogs(t, s.program, event)
		if failed {
			r.Value.Err = "InstructionError"
		}
		return r
	}
	sub.results <- result(sol.Signature{1}, 20, false)
	sub.results <- result(sol.Signature{1}, 20, false)
	sub.results <- result(sol.Signature{2}, 21, true)
	sub.results <- result(sol.Signature{3}, 22, false)

	events := make(chan types.RawEvent, 10)
	require.NoError(t, s.InitEventStream(context.Background(), events))
	defer s.ShutdownListeners()

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.TransactionHash)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []string{sol.Signature{1}.String(), sol.Signature{3}.String()}, got)

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.TransactionHash)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCheckConnection(t *testing.T) {
	s, _ := newTestSolana(t, newFakeRPC())
	manager := &solanaConnectionManager{chain: s}
	assert.NoError(t, manager.CheckConnection(context.Background()))

	s.Close()
	assert.True(t, errors.Is(manager.CheckConnection(context.Background()), commonerrors.ErrClientNotReady))
}
