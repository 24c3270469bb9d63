// Package relay wires every registered chain into a full mesh: raw events
// from each chain are decoded, routed by destination nonce and submitted on
// the destination chain, after which the metadata store is updated and a
// "tx_executed" notification is emitted.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ClipFinance/bridge-relay/chainmanager"
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// Run relays between chains with default settings until ctx is done.
// Events are notified through the logger.
//
// Parameters:
// - ctx: the context bounding the relay.
// - logger: the logger for logging purposes.
// - chains: the chains to relay between.
//
// Returns:
// - error: ErrDuplicateChainNonce if two chains share a nonce, or a stream start error.
func Run(ctx context.Context, logger *logrus.Logger, chains ...types.Chain) error {
	registry, err := chainmanager.NewChainRegistry(chains...)
	if err != nil {
		return err
	}

	dispatcher, err := NewDispatcherBuilder(registry, logger).Build()
	if err != nil {
		return err
	}
	return dispatcher.Run(ctx)
}

// Dispatcher routes canonical events between the chains of a registry.
type Dispatcher struct {
	registry      types.ChainRegistry
	logger        *logrus.Logger
	metadata      MetadataStore
	notifier      Notifier
	failures      FailureQueue
	onOutcome     OutcomeHook
	submitTimeout time.Duration
	eventBuffer   int

	inflight sync.WaitGroup
}

// Run starts the event stream of every registered chain and dispatches their
// events until ctx is done. Events of one chain are handled in delivery
// order; chains are handled concurrently.
//
// Parameters:
// - ctx: the context bounding the relay.
//
// Returns:
// - error: an error if any event stream cannot be started.
func (d *Dispatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chains := d.registry.All()
	started := make([]types.Chain, 0, len(chains))
	stopped := make(chan struct{})
	var consumers sync.WaitGroup

	// Listeners stop first. Events they already queued, and checkpointed,
	// are still handled by the consumers.
	shutdown := func() {
		for _, chain := range started {
			chain.ShutdownListeners()
		}
		cancel()
		close(stopped)
		consumers.Wait()
		d.inflight.Wait()
	}

	for _, chain := range chains {
		eventChan := make(chan types.RawEvent, d.eventBuffer)

		if err := chain.InitEventStream(runCtx, eventChan); err != nil {
			shutdown()
			return errors.Wrapf(err, "failed to start event stream for %s", chain.Identity())
		}
		started = append(started, chain)

		d.logger.WithFields(logrus.Fields{
			"chain": chain.Identity().Name,
			"nonce": chain.Identity().Nonce,
		}).Info("Event stream started")

		consumers.Add(1)
		go func(source types.Chain, events <-chan types.RawEvent) {
			defer consumers.Done()
			d.consume(ctx, source, events, stopped)
		}(chain, eventChan)
	}

	<-runCtx.Done()
	d.logger.Info("Relay shutting down, waiting for in-flight submissions")
	shutdown()

	return nil
}

// consume handles the raw events of one chain in order. Once stopped is
// closed it handles what is left in events and returns.
func (d *Dispatcher) consume(ctx context.Context, source types.Chain, events <-chan types.RawEvent, stopped <-chan struct{}) {
	for {
		select {
		case <-stopped:
			d.drain(ctx, source, events)
			return
		case raw, ok := <-events:
			if !ok {
				return
			}
			d.HandleRawEvent(ctx, source, raw)
		}
	}
}

// drain handles the events still buffered in events without waiting for more.
func (d *Dispatcher) drain(ctx context.Context, source types.Chain, events <-chan types.RawEvent) {
	drained := 0
	defer func() {
		if drained > 0 {
			d.logger.WithFields(logrus.Fields{
				"chain":  source.Identity().Name,
				"events": drained,
			}).Info("Handled buffered events on shutdown")
		}
	}()

	for {
		select {
		case raw, ok := <-events:
			if !ok {
				return
			}
			drained++
			d.HandleRawEvent(ctx, source, raw)
		default:
			return
		}
	}
}

// HandleRawEvent decodes raw with the source chain and dispatches the result.
//
// Parameters:
// - ctx: the context for managing the request.
// - source: the chain raw was observed on.
// - raw: the raw chain event.
func (d *Dispatcher) HandleRawEvent(ctx context.Context, source types.Chain, raw types.RawEvent) {
	origin := source.Identity()

	ev, err := source.DecodeEvent(raw)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"chain":  origin.Name,
			"txHash": raw.TransactionHash,
			"block":  raw.BlockNumber,
		}).WithError(err).Error("Failed to decode chain event")
		d.report(Outcome{Origin: origin, Stage: StageDecodeFailed, Err: err})
		return
	}

	if ev == nil {
		d.report(Outcome{Origin: origin, Stage: StageDropped})
		return
	}

	_ = d.Dispatch(ctx, origin, ev)
}

// Dispatch routes ev and starts its submission on the destination chain.
// The submission runs in its own goroutine and is bounded by the submit timeout.
//
// Parameters:
// - ctx: the context for managing the request.
// - origin: the chain ev was observed on.
// - ev: the canonical event.
//
// Returns:
// - error: ErrSelfRoute or ErrUnsupportedDestination if ev cannot be routed.
func (d *Dispatcher) Dispatch(ctx context.Context, origin types.ChainIdentity, ev types.Event) error {
	destination, err := d.Route(origin.Nonce, ev)
	if err != nil {
		reason := types.ReasonUnsupportedDestination
		if errors.Is(err, commonerrors.ErrSelfRoute) {
			reason = types.ReasonSelfRoute
		}
		d.fail(ctx, origin, ev, StageRoutingFailed, reason, err)
		return err
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.submit(ctx, origin, destination, ev)
	}()

	return nil
}

// Route resolves the destination chain of ev.
//
// Parameters:
// - origin: the nonce of the chain ev was observed on.
// - ev: the canonical event.
//
// Returns:
// - types.Chain: the destination chain.
// - error: ErrSelfRoute or ErrUnsupportedDestination.
func (d *Dispatcher) Route(origin types.ChainNonce, ev types.Event) (types.Chain, error) {
	destination := ev.DestinationNonce()
	if destination == origin {
		return nil, errors.Wrapf(commonerrors.ErrSelfRoute, "chain %d", origin)
	}

	chain, ok := d.registry.Get(destination)
	if !ok {
		return nil, errors.Wrapf(commonerrors.ErrUnsupportedDestination, "nonce %d", destination)
	}
	return chain, nil
}

// Wait blocks until every started submission has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// submit drives one event through the destination chain, the metadata store
// and the notifier. It outlives cancellation of ctx until the submit timeout.
func (d *Dispatcher) submit(ctx context.Context, origin types.ChainIdentity, destination types.Chain, ev types.Event) {
	target := destination.Identity()
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.submitTimeout)
	defer cancel()

	fields := logrus.Fields{
		"origin":      origin.Name,
		"destination": target.Name,
		"action_id":   ev.ActionID().String(),
		"kind":        ev.Kind(),
	}

	result, err := destination.SubmitEvent(submitCtx, ev, origin.Nonce)
	if err == nil && result == nil {
		err = errors.New("destination returned no submit result")
	}
	if err != nil {
		reason := types.ReasonSubmitFailed
		switch {
		case errors.Is(err, commonerrors.ErrRetriesExhausted):
			reason = types.ReasonRetriesExhausted
		case errors.Is(submitCtx.Err(), context.DeadlineExceeded):
			reason = types.ReasonSubmitTimeout
			err = errors.Wrapf(commonerrors.ErrSubmitTimeout, "after %s: %v", d.submitTimeout, err)
		}
		d.fail(ctx, origin, ev, StageSubmitFailed, reason, err)
		return
	}

	d.logger.WithFields(fields).WithField("tx_hash", result.TxHash).Info("Transaction submitted")

	outcome := Outcome{
		Origin:      origin,
		Destination: target.Nonce,
		Event:       ev,
		Stage:       StageNotified,
		TxHash:      result.TxHash,
	}

	if result.Metadata != nil && d.metadata != nil {
		metadataCtx, cancelMetadata := context.WithTimeout(context.WithoutCancel(ctx), collaboratorTimeout)
		err := d.metadata.UpdateByID(metadataCtx, result.Metadata.ID, target.String())
		cancelMetadata()

		if err != nil {
			// The transaction is already on chain; the notification still goes out.
			d.logger.WithFields(fields).WithFields(logrus.Fields{
				"alert":       true,
				"metadata_id": result.Metadata.ID,
				"tx_hash":     result.TxHash,
			}).WithError(err).Error("Failed to update nft metadata")
			outcome.Err = errors.Wrap(err, "failed to update nft metadata")
		} else {
			outcome.MetadataUpdated = true
		}
	}

	d.notifier.Emit(types.TxExecuted{
		Destination: target.Nonce,
		ActionID:    ev.ActionID(),
		TxHash:      result.TxHash,
	})

	d.report(outcome)
}

// fail logs an event-scoped failure as an alert and records it in the failure queue.
func (d *Dispatcher) fail(ctx context.Context, origin types.ChainIdentity, ev types.Event, stage Stage, reason types.FailureReason, cause error) {
	d.logger.WithFields(logrus.Fields{
		"alert":       true,
		"origin":      origin.Name,
		"destination": ev.DestinationNonce(),
		"action_id":   ev.ActionID().String(),
		"kind":        ev.Kind(),
		"reason":      reason,
	}).WithError(cause).Error("Relay action failed")

	if d.failures != nil {
		queueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), collaboratorTimeout)
		err := d.failures.Enqueue(queueCtx, types.NewFailedAction(origin.Nonce, ev, reason, cause))
		cancel()

		if err != nil {
			d.logger.WithFields(logrus.Fields{
				"alert":     true,
				"origin":    origin.Name,
				"action_id": ev.ActionID().String(),
			}).WithError(err).Error("Failed to record failed action")
		}
	}

	d.report(Outcome{
		Origin:      origin,
		Destination: ev.DestinationNonce(),
		Event:       ev,
		Stage:       stage,
		Err:         cause,
	})
}

func (d *Dispatcher) report(outcome Outcome) {
	if d.onOutcome != nil {
		d.onOutcome(outcome)
	}
}
