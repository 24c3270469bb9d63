package solana

import (
	"context"
	"sync"
	"time"

	sol "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/common/types"
)

const (
	// signaturePageSize is the page size of getSignaturesForAddress.
	signaturePageSize = 100
	// maxSignaturePages bounds one poll.
	maxSignaturePages = 10
	// resubscribeDelay is the pause before a dropped log subscription is re-established.
	resubscribeDelay = 5 * time.Second
	// seenCapacity is the number of recent signatures remembered for deduplication.
	seenCapacity = 1024
)

// logSubscription is a live stream of transaction logs.
type logSubscription interface {
	Recv(ctx context.Context) (*ws.LogResult, error)
	Unsubscribe()
}

// subscribeFunc opens a log subscription and returns it with its close function.
type subscribeFunc func(ctx context.Context) (logSubscription, func(), error)

// eventStream forwards bridge program transactions to the relay.
type eventStream struct {
	chain     *solana
	eventChan chan<- types.RawEvent
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// Only touched by the stream goroutine.
	lastSignature sol.Signature
	resumeSlot    uint64
	seen          map[sol.Signature]struct{}
	seenOrder     []sol.Signature

	slotMutex         sync.RWMutex
	lastProcessedSlot uint64
}

func newEventStream(ctx context.Context, chain *solana, eventChan chan<- types.RawEvent) *eventStream {
	streamCtx, cancel := context.WithCancel(ctx)
	st := &eventStream{
		chain:     chain,
		eventChan: eventChan,
		ctx:       streamCtx,
		cancel:    cancel,
		seen:      make(map[sol.Signature]struct{}, seenCapacity),
	}
	st.resumeSlot = st.loadResumeSlot(streamCtx)
	return st
}

// Stop cancels the stream and waits for its goroutine.
func (st *eventStream) Stop() {
	st.cancel()
	st.wg.Wait()
}

// LastProcessedSlot returns the last slot known to be fully delivered.
func (st *eventStream) LastProcessedSlot() uint64 {
	st.slotMutex.RLock()
	defer st.slotMutex.RUnlock()
	return st.lastProcessedSlot
}

// loadResumeSlot returns the checkpoint, else StartBlock-1, else 0 for "start at head".
func (st *eventStream) loadResumeSlot(ctx context.Context) uint64 {
	config := st.chain.config
	if st.chain.checkpoints != nil {
		slot, ok, err := st.chain.checkpoints.TryLoadLatestBlock(ctx, uint32(config.Nonce))
		if err != nil {
			st.chain.logger.WithField("chain", config.Name).WithError(err).Warn("Failed to load slot checkpoint")
		} else if ok {
			return slot
		}
	}
	if config.StartBlock > 0 {
		return config.StartBlock - 1
	}
	return 0
}

// startPolling polls the bridge program signatures on every tick.
func (st *eventStream) startPolling(interval time.Duration) {
	st.wg.Add(1)
	go func() {
		defer st.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := st.poll(st.ctx); err != nil && st.ctx.Err() == nil {
				st.chain.logger.WithField("chain", st.chain.config.Name).WithError(err).Warn("Failed to poll bridge transactions")
			}

			select {
			case <-st.ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// startSubscription delivers transactions from a live log subscription. The
// gap before each (re)subscription is backfilled by a poll.
func (st *eventStream) startSubscription(subscribe subscribeFunc) error {
	sub, closeSub, err := subscribe(st.ctx)
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to bridge logs")
	}

	st.wg.Add(1)
	go func() {
		defer st.wg.Done()

		for {
			if err := st.poll(st.ctx); err != nil && st.ctx.Err() == nil {
				st.chain.logger.WithField("chain", st.chain.config.Name).WithError(err).Warn("Failed to backfill bridge transactions")
			}

			err := st.receive(st.ctx, sub)
			closeSub()
			if st.ctx.Err() != nil {
				return
			}
			st.chain.logger.WithField("chain", st.chain.config.Name).WithError(err).Warn("Log subscription dropped, resubscribing")

			for {
				select {
				case <-st.ctx.Done():
					return
				case <-time.After(resubscribeDelay):
				}

				sub, closeSub, err = subscribe(st.ctx)
				if err == nil {
					break
				}
				st.chain.logger.WithField("chain", st.chain.config.Name).WithError(err).Warn("Failed to resubscribe to bridge logs")
			}
		}
	}()

	return nil
}

// receive forwards subscription results until the subscription fails.
func (st *eventStream) receive(ctx context.Context, sub logSubscription) error {
	for {
		result, err := sub.Recv(ctx)
		if err != nil {
			return err
		}
		if result == nil || result.Value.Err != nil {
			continue
		}

		signature := result.Value.Signature
		if !st.deliver(ctx, signature, result.Context.Slot, result.Value.Logs) {
			return ctx.Err()
		}
		st.lastSignature = signature
		if result.Context.Slot > 0 {
			st.markProcessed(ctx, result.Context.Slot-1)
		}
	}
}

// poll delivers every bridge transaction since the last seen signature, oldest first.
func (st *eventStream) poll(ctx context.Context) error {
	client, err := st.chain.getClient()
	if err != nil {
		return err
	}

	if st.lastSignature == (sol.Signature{}) && st.resumeSlot == 0 {
		return st.markHead(ctx, client)
	}

	signatures, err := st.newSignatures(ctx, client)
	if err != nil {
		return err
	}

	for i := len(signatures) - 1; i >= 0; i-- {
		sig := signatures[i]
		if sig.Err == nil {
			logs, err := st.fetchLogs(ctx, client, sig.Signature)
			if err != nil {
				return err
			}
			if !st.deliver(ctx, sig.Signature, sig.Slot, logs) {
				return ctx.Err()
			}
		}

		st.lastSignature = sig.Signature
		if sig.Slot > 0 {
			st.markProcessed(ctx, sig.Slot-1)
		}
	}

	if len(signatures) > 0 {
		st.markProcessed(ctx, signatures[0].Slot)
	}
	return nil
}

// markHead starts the stream at the newest bridge transaction.
func (st *eventStream) markHead(ctx context.Context, client rpcClient) error {
	limit := 1
	signatures, err := client.GetSignaturesForAddressWithOpts(ctx, st.chain.program, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return errors.Wrap(err, "failed to get bridge signatures")
	}
	if len(signatures) == 0 {
		return nil
	}

	st.lastSignature = signatures[0].Signature
	st.markProcessed(ctx, signatures[0].Slot)

	st.chain.logger.WithFields(logrus.Fields{
		"chain": st.chain.config.Name,
		"slot":  signatures[0].Slot,
	}).Info("Starting bridge stream at head")
	return nil
}

// newSignatures pages backwards from the newest signature down to the last
// seen signature or, on the first poll, down to the resume slot.
func (st *eventStream) newSignatures(ctx context.Context, client rpcClient) ([]*rpc.TransactionSignature, error) {
	limit := signaturePageSize
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Until:      st.lastSignature,
		Commitment: rpc.CommitmentConfirmed,
	}
	resuming := st.lastSignature == (sol.Signature{})

	var out []*rpc.TransactionSignature
	for page := 0; page < maxSignaturePages; page++ {
		batch, err := client.GetSignaturesForAddressWithOpts(ctx, st.chain.program, opts)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get bridge signatures")
		}

		for _, sig := range batch {
			if resuming && sig.Slot <= st.resumeSlot {
				return out, nil
			}
			out = append(out, sig)
		}

		if len(batch) < limit {
			return out, nil
		}
		opts.Before = batch[len(batch)-1].Signature
	}

	st.chain.logger.WithFields(logrus.Fields{
		"chain":  st.chain.config.Name,
		"oldest": out[len(out)-1].Signature.String(),
	}).Error("Bridge signature backlog truncated")
	return out, nil
}

func (st *eventStream) fetchLogs(ctx context.Context, client rpcClient, signature sol.Signature) ([]string, error) {
	version := uint64(0)
	result, err := client.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
		Encoding:                       sol.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get transaction %s", signature)
	}
	if result == nil || result.Meta == nil {
		return nil, nil
	}
	return result.Meta.LogMessages, nil
}

// deliver forwards one raw event per bridge event in logs. It returns false once ctx is done.
func (st *eventStream) deliver(ctx context.Context, signature sol.Signature, slot uint64, logs []string) bool {
	if !st.remember(signature) {
		return true
	}

	count := len(bridgeDataLines(logs, st.chain.program))
	payload := programLogs{Signature: signature, Slot: slot, Logs: logs}

	for i := 0; i < count; i++ {
		event := types.RawEvent{
			ChainNonce:      st.chain.config.Nonce,
			BlockNumber:     slot,
			TransactionHash: signature.String(),
			LogIndex:        uint(i),
			Data:            payload,
		}

		select {
		case <-ctx.Done():
			return false
		case st.eventChan <- event:
		}
	}
	return true
}

// remember records signature and reports whether it was new.
func (st *eventStream) remember(signature sol.Signature) bool {
	if _, ok := st.seen[signature]; ok {
		return false
	}
	if len(st.seenOrder) >= seenCapacity {
		delete(st.seen, st.seenOrder[0])
		st.seenOrder = st.seenOrder[1:]
	}
	st.seen[signature] = struct{}{}
	st.seenOrder = append(st.seenOrder, signature)
	return true
}

// markProcessed records slot as processed and stores the checkpoint.
func (st *eventStream) markProcessed(ctx context.Context, slot uint64) {
	st.slotMutex.Lock()
	if slot <= st.lastProcessedSlot {
		st.slotMutex.Unlock()
		return
	}
	st.lastProcessedSlot = slot
	st.slotMutex.Unlock()

	if st.chain.checkpoints == nil {
		return
	}
	if err := st.chain.checkpoints.StoreBlock(ctx, uint32(st.chain.config.Nonce), slot); err != nil {
		st.chain.logger.WithFields(logrus.Fields{
			"chain": st.chain.config.Name,
			"slot":  slot,
		}).WithError(err).Warn("Failed to store slot checkpoint")
	}
}

// subscribeLogs opens a websocket subscription to transactions mentioning the bridge program.
func (s *solana) subscribeLogs(ctx context.Context) (logSubscription, func(), error) {
	client, err := ws.Connect(ctx, s.config.WsUrl)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect websocket")
	}

	sub, err := client.LogsSubscribeMentions(s.program, rpc.CommitmentConfirmed)
	if err != nil {
		client.Close()
		return nil, nil, errors.Wrap(err, "failed to subscribe")
	}

	return sub, func() {
		sub.Unsubscribe()
		client.Close()
	}, nil
}

// InitEventStream starts forwarding bridge program transactions to eventChan,
// over a websocket log subscription when WsUrl is configured and by polling otherwise.
//
// Parameters:
// - ctx: the context bounding the stream.
// - eventChan: the channel to receive raw chain events.
//
// Returns:
// - error: an error if the stream cannot be started.
func (s *solana) InitEventStream(ctx context.Context, eventChan chan<- types.RawEvent) error {
	s.eventHandlerMutex.Lock()
	defer s.eventHandlerMutex.Unlock()

	if _, err := s.getClient(); err != nil {
		return err
	}

	if s.eventHandler != nil {
		s.eventHandler.Stop()
		s.eventHandler = nil
	}

	st := newEventStream(ctx, s, eventChan)
	if s.config.WsUrl == "" {
		st.startPolling(s.pollingInterval)
		s.eventHandler = st
		return nil
	}

	subscribe := s.subscribe
	if subscribe == nil {
		subscribe = s.subscribeLogs
	}
	if err := st.startSubscription(subscribe); err != nil {
		st.Stop()
		return err
	}
	s.eventHandler = st
	return nil
}
