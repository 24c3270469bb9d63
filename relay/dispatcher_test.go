package relay

import (
	"context"
	"io"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClipFinance/bridge-relay/chainmanager"
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

type submitCall struct {
	event  types.Event
	origin types.ChainNonce
}

type fakeChain struct {
	identity types.ChainIdentity

	mutex   sync.Mutex
	submits []submitCall
	decoded []string

	result    *types.SubmitResult
	submitErr error
	blockCtx  bool

	streamErr   error
	events      []types.RawEvent
	delivered   chan struct{}
	decodeDelay time.Duration
	shutdowns   int32
}

func newFakeChain(name string, nonce types.ChainNonce) *fakeChain {
	return &fakeChain{
		identity: types.ChainIdentity{Name: name, Nonce: nonce},
		result:   &types.SubmitResult{TxHash: "0x" + name},
	}
}

func (c *fakeChain) Identity() types.ChainIdentity { return c.identity }

func (c *fakeChain) InitEventStream(ctx context.Context, eventChan chan<- types.RawEvent) error {
	if c.streamErr != nil {
		return c.streamErr
	}
	go func() {
		if c.delivered != nil {
			defer close(c.delivered)
		}
		for _, raw := range c.events {
			select {
			case eventChan <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *fakeChain) ShutdownListeners() { atomic.AddInt32(&c.shutdowns, 1) }

func (c *fakeChain) DecodeEvent(raw types.RawEvent) (types.Event, error) {
	time.Sleep(c.decodeDelay)

	c.mutex.Lock()
	c.decoded = append(c.decoded, raw.TransactionHash)
	c.mutex.Unlock()

	switch data := raw.Data.(type) {
	case types.Event:
		return data, nil
	case error:
		return nil, data
	default:
		return nil, nil
	}
}

func (c *fakeChain) SubmitEvent(ctx context.Context, ev types.Event, origin types.ChainNonce) (*types.SubmitResult, error) {
	c.mutex.Lock()
	c.submits = append(c.submits, submitCall{event: ev, origin: origin})
	c.mutex.Unlock()

	if c.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	return c.result, nil
}

func (c *fakeChain) submitCalls() []submitCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]submitCall{}, c.submits...)
}

type metadataCall struct{ id, tag string }

type recorder struct {
	mutex         sync.Mutex
	notifications []types.TxExecuted
	metadata      []metadataCall
	failed        []*types.FailedAction
	outcomes      []Outcome
	metadataErr   error
}

func (r *recorder) Emit(event types.TxExecuted) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.notifications = append(r.notifications, event)
}

func (r *recorder) UpdateByID(_ context.Context, id string, chainTag string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.metadata = append(r.metadata, metadataCall{id: id, tag: chainTag})
	return r.metadataErr
}

func (r *recorder) Enqueue(_ context.Context, action *types.FailedAction) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.failed = append(r.failed, action)
	return nil
}

func (r *recorder) hook(outcome Outcome) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorder) outcomeCount() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.outcomes)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newDispatcher(t *testing.T, rec *recorder, chains ...types.Chain) *Dispatcher {
	t.Helper()

	registry, err := chainmanager.NewChainRegistry(chains...)
	require.NoError(t, err)

	dispatcher, err := NewDispatcherBuilder(registry, quietLogger()).
		WithMetadataStore(rec).
		WithNotifier(rec).
		WithFailureQueue(rec).
		WithOutcomeHook(rec.hook).
		WithSubmitTimeout(time.Second).
		Build()
	require.NoError(t, err)
	return dispatcher
}

func TestTransferIsSubmittedOnDestinationAndNotified(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	destination := newFakeChain("chainB", 2)
	dispatcher := newDispatcher(t, rec, source, destination)

	ev := types.NewTransfer(big.NewInt(7), 2, "addrB", big.NewInt(500))
	dispatcher.HandleRawEvent(context.Background(), source, types.RawEvent{ChainNonce: 1, Data: ev})
	dispatcher.Wait()

	calls := destination.submitCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.ChainNonce(1), calls[0].origin)
	assert.Equal(t, ev, calls[0].event)
	assert.Empty(t, source.submitCalls())

	require.Len(t, rec.notifications, 1)
	assert.Equal(t, types.ChainNonce(2), rec.notifications[0].Destination)
	assert.Equal(t, "7", rec.notifications[0].ActionID.String())
	assert.Equal(t, "0xchainB", rec.notifications[0].TxHash)
	assert.Empty(t, rec.metadata)
	assert.Empty(t, rec.failed)

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, StageNotified, rec.outcomes[0].Stage)
	assert.False(t, rec.outcomes[0].MetadataUpdated)
}

func TestUnregisteredDestinationIsRoutingFailure(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	other := newFakeChain("chainB", 2)
	dispatcher := newDispatcher(t, rec, source, other)

	ev := types.NewTransferUnique(big.NewInt(9), 99, "addrZ", []byte{1, 2}, "https://meta/9")
	err := dispatcher.Dispatch(context.Background(), source.Identity(), ev)
	dispatcher.Wait()

	assert.True(t, errors.Is(err, commonerrors.ErrUnsupportedDestination))
	assert.Empty(t, source.submitCalls())
	assert.Empty(t, other.submitCalls())
	assert.Empty(t, rec.notifications)

	require.Len(t, rec.failed, 1)
	assert.Equal(t, types.ReasonUnsupportedDestination, rec.failed[0].Reason)
	assert.Equal(t, "9", rec.failed[0].ActionID)
	assert.Equal(t, types.ChainNonce(99), rec.failed[0].Destination)

	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, StageRoutingFailed, rec.outcomes[0].Stage)
}

func TestSelfRouteIsRejected(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	other := newFakeChain("chainB", 2)
	dispatcher := newDispatcher(t, rec, source, other)

	ev := types.NewUnfreeze(big.NewInt(3), 1, "addrA", big.NewInt(1))
	dispatcher.HandleRawEvent(context.Background(), source, types.RawEvent{Data: ev})
	dispatcher.Wait()

	assert.Empty(t, source.submitCalls())
	assert.Empty(t, other.submitCalls())
	require.Len(t, rec.failed, 1)
	assert.Equal(t, types.ReasonSelfRoute, rec.failed[0].Reason)
	require.Len(t, rec.outcomes, 1)
	assert.True(t, errors.Is(rec.outcomes[0].Err, commonerrors.ErrSelfRoute))
}

func TestRouteOnlyReachesOwnerOfDestination(t *testing.T) {
	chains := []*fakeChain{newFakeChain("a", 1), newFakeChain("b", 2), newFakeChain("c", 3), newFakeChain("d", 4)}
	registered := make([]types.Chain, 0, len(chains))
	for _, c := range chains {
		registered = append(registered, c)
	}
	rec := &recorder{}
	dispatcher := newDispatcher(t, rec, registered...)

	for _, origin := range chains {
		for _, destination := range chains {
			if origin == destination {
				continue
			}
			ev := types.NewTransfer(big.NewInt(int64(origin.identity.Nonce)), destination.identity.Nonce, "r", big.NewInt(1))
			require.NoError(t, dispatcher.Dispatch(context.Background(), origin.identity, ev))
		}
	}
	dispatcher.Wait()

	for _, c := range chains {
		calls := c.submitCalls()
		assert.Len(t, calls, 3)
		for _, call := range calls {
			assert.Equal(t, c.identity.Nonce, call.event.DestinationNonce())
			assert.NotEqual(t, c.identity.Nonce, call.origin)
		}
	}
	assert.Len(t, rec.notifications, 12)
}

func TestUniqueTransferUpdatesMetadata(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	destination := newFakeChain("chainB", 2)
	destination.result = &types.SubmitResult{TxHash: "0xfeed", Metadata: &types.MetadataUpdate{ID: "42", Data: "ptr"}}
	dispatcher := newDispatcher(t, rec, source, destination)

	ev := types.NewTransferUnique(big.NewInt(11), 2, "addrB", []byte{1}, "https://meta/42")
	require.NoError(t, dispatcher.Dispatch(context.Background(), source.Identity(), ev))
	dispatcher.Wait()

	assert.Equal(t, []metadataCall{{id: "42", tag: "chainB:2"}}, rec.metadata)
	require.Len(t, rec.notifications, 1)
	require.Len(t, rec.outcomes, 1)
	assert.True(t, rec.outcomes[0].MetadataUpdated)
}

func TestMetadataFailureStillNotifies(t *testing.T) {
	rec := &recorder{metadataErr: errors.New("db down")}
	source := newFakeChain("chainA", 1)
	destination := newFakeChain("chainB", 2)
	destination.result = &types.SubmitResult{TxHash: "0xfeed", Metadata: &types.MetadataUpdate{ID: "42"}}
	dispatcher := newDispatcher(t, rec, source, destination)

	ev := types.NewTransferUnique(big.NewInt(11), 2, "addrB", []byte{1}, "https://meta/42")
	require.NoError(t, dispatcher.Dispatch(context.Background(), source.Identity(), ev))
	dispatcher.Wait()

	require.Len(t, rec.notifications, 1)
	require.Len(t, rec.outcomes, 1)
	assert.Equal(t, StageNotified, rec.outcomes[0].Stage)
	assert.False(t, rec.outcomes[0].MetadataUpdated)
	assert.Error(t, rec.outcomes[0].Err)
}

func TestSubmitFailureIsDeadLettered(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason types.FailureReason
	}{
		{"rejected", errors.New("execution reverted"), types.ReasonSubmitFailed},
		{"exhausted", errors.Wrap(commonerrors.ErrRetriesExhausted, "5 attempts"), types.ReasonRetriesExhausted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			source := newFakeChain("chainA", 1)
			destination := newFakeChain("chainB", 2)
			destination.submitErr = tc.err
			dispatcher := newDispatcher(t, rec, source, destination)

			ev := types.NewTransfer(big.NewInt(5), 2, "addrB", big.NewInt(10))
			require.NoError(t, dispatcher.Dispatch(context.Background(), source.Identity(), ev))
			dispatcher.Wait()

			assert.Empty(t, rec.notifications)
			require.Len(t, rec.failed, 1)
			assert.Equal(t, tc.reason, rec.failed[0].Reason)
			assert.Equal(t, types.StatusPending, rec.failed[0].Status)
			assert.Equal(t, map[string]string{"amount": "10"}, rec.failed[0].Payload)
			require.Len(t, rec.outcomes, 1)
			assert.Equal(t, StageSubmitFailed, rec.outcomes[0].Stage)
		})
	}
}

func TestSubmitTimeout(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	destination := newFakeChain("chainB", 2)
	destination.blockCtx = true

	registry, err := chainmanager.NewChainRegistry(source, destination)
	require.NoError(t, err)
	dispatcher, err := NewDispatcherBuilder(registry, quietLogger()).
		WithNotifier(rec).
		WithFailureQueue(rec).
		WithOutcomeHook(rec.hook).
		WithSubmitTimeout(20 * time.Millisecond).
		Build()
	require.NoError(t, err)

	ev := types.NewTransfer(big.NewInt(5), 2, "addrB", big.NewInt(10))
	require.NoError(t, dispatcher.Dispatch(context.Background(), source.Identity(), ev))
	dispatcher.Wait()

	require.Len(t, rec.failed, 1)
	assert.Equal(t, types.ReasonSubmitTimeout, rec.failed[0].Reason)
	require.Len(t, rec.outcomes, 1)
	assert.True(t, errors.Is(rec.outcomes[0].Err, commonerrors.ErrSubmitTimeout))
}

func TestSubmissionOutlivesCallerCancellation(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	destination := newFakeChain("chainB", 2)
	dispatcher := newDispatcher(t, rec, source, destination)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ev := types.NewTransfer(big.NewInt(5), 2, "addrB", big.NewInt(10))
	require.NoError(t, dispatcher.Dispatch(ctx, source.Identity(), ev))
	dispatcher.Wait()

	assert.Len(t, rec.notifications, 1)
}

func TestDecodeOutcomes(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	dispatcher := newDispatcher(t, rec, source, newFakeChain("chainB", 2))

	dispatcher.HandleRawEvent(context.Background(), source, types.RawEvent{TransactionHash: "0x1"})
	dispatcher.HandleRawEvent(context.Background(), source, types.RawEvent{
		TransactionHash: "0x2",
		Data:            errors.Wrap(commonerrors.ErrDecode, "too few fields"),
	})
	dispatcher.Wait()

	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, StageDropped, rec.outcomes[0].Stage)
	assert.Equal(t, StageDecodeFailed, rec.outcomes[1].Stage)
	assert.True(t, errors.Is(rec.outcomes[1].Err, commonerrors.ErrDecode))
	assert.Empty(t, rec.failed)
}

func TestRunDeliversEventsInOrderAndShutsDown(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	destination := newFakeChain("chainB", 2)
	for i := 1; i <= 5; i++ {
		source.events = append(source.events, types.RawEvent{
			TransactionHash: string(rune('0' + i)),
			Data:            types.NewTransfer(big.NewInt(int64(i)), 2, "addrB", big.NewInt(1)),
		})
	}
	dispatcher := newDispatcher(t, rec, source, destination)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.outcomeCount() == 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, source.decoded)
	assert.Len(t, destination.submitCalls(), 5)
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.shutdowns))
	assert.Equal(t, int32(1), atomic.LoadInt32(&destination.shutdowns))
}

func TestRunFailsWhenStreamCannotStart(t *testing.T) {
	rec := &recorder{}
	first := newFakeChain("chainA", 1)
	second := newFakeChain("chainB", 2)
	second.streamErr = errors.New("dial failed")
	dispatcher := newDispatcher(t, rec, first, second)

	err := dispatcher.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chainB")
	assert.Equal(t, int32(1), atomic.LoadInt32(&first.shutdowns))
}

func TestRunHandlesBufferedEventsOnShutdown(t *testing.T) {
	rec := &recorder{}
	source := newFakeChain("chainA", 1)
	source.decodeDelay = 20 * time.Millisecond
	source.delivered = make(chan struct{})
	destination := newFakeChain("chainB", 2)
	for i := 1; i <= 10; i++ {
		source.events = append(source.events, types.RawEvent{
			TransactionHash: string(rune('0' + i)),
			Data:            types.NewTransfer(big.NewInt(int64(i)), 2, "addrB", big.NewInt(1)),
		})
	}
	dispatcher := newDispatcher(t, rec, source, destination)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Run(ctx) }()

	select {
	case <-source.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("events were not delivered")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	assert.Equal(t, 10, rec.outcomeCount())
	assert.Len(t, destination.submitCalls(), 10)
	assert.Len(t, rec.notifications, 10)
	assert.Empty(t, rec.failed)
}

func TestRunRelaysBetweenChains(t *testing.T) {
	source := newFakeChain("chainA", 1)
	destination := newFakeChain("chainB", 2)
	source.events = []types.RawEvent{{
		TransactionHash: "0x1",
		Data:            types.NewTransfer(big.NewInt(1), 2, "addrB", big.NewInt(1)),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, quietLogger(), source, destination) }()

	require.Eventually(t, func() bool { return len(destination.submitCalls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Equal(t, types.ChainNonce(1), destination.submitCalls()[0].origin)
}

func TestRunRejectsDuplicateNonce(t *testing.T) {
	first := newFakeChain("chainA", 1)
	second := newFakeChain("chainB", 1)

	err := Run(context.Background(), quietLogger(), first, second)
	assert.True(t, errors.Is(err, commonerrors.ErrDuplicateChainNonce))
	assert.Equal(t, int32(0), atomic.LoadInt32(&first.shutdowns))
}

func TestBuildRequiresRegistryAndLogger(t *testing.T) {
	_, err := NewDispatcherBuilder(nil, quietLogger()).Build()
	assert.True(t, errors.Is(err, commonerrors.ErrInvalidConfig))

	registry, err := chainmanager.NewChainRegistry()
	require.NoError(t, err)
	_, err = NewDispatcherBuilder(registry, nil).Build()
	assert.True(t, errors.Is(err, commonerrors.ErrInvalidConfig))
}
