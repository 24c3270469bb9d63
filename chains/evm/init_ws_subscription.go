package evm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ClipFinance/bridge-relay/chains/evm/handler"
	"github.com/ClipFinance/bridge-relay/common/types"
)

// InitEventStream starts forwarding bridge logs to eventChan, over a
// websocket subscription or HTTP polling depending on the endpoint scheme.
//
// Parameters:
// - ctx: the context bounding the stream.
// - eventChan: the channel to receive raw chain events.
//
// Returns:
// - error: an error if the stream cannot be started.
func (e *evm) InitEventStream(ctx context.Context, eventChan chan<- types.RawEvent) error {
	if types.GetSubscriptionMode(endpoint(e.config)) == types.WebSocketMode {
		return e.initEventHandler(ctx, eventChan, (*handler.EventHandler).StartWSSubscription)
	}
	return e.initEventHandler(ctx, eventChan, (*handler.EventHandler).StartHTTPPolling)
}

// initEventHandler replaces the event handler and starts it.
//
// Parameters:
// - ctx: the context for managing the initialization process.
// - eventChan: the channel to receive raw chain events.
// - start: the handler start method.
//
// Returns:
// - error: an error if the client is not initialized or if starting the handler fails.
func (e *evm) initEventHandler(
	ctx context.Context,
	eventChan chan<- types.RawEvent,
	start func(*handler.EventHandler) error,
) error {
	e.eventHandlerMutex.Lock()
	defer e.eventHandlerMutex.Unlock()

	client, err := e.getClient()
	if err != nil {
		return err
	}

	if e.eventHandler != nil {
		e.eventHandler.Stop()
	}

	var opts []handler.Option
	if e.checkpoints != nil {
		opts = append(opts, handler.WithCheckpointer(e.checkpoints))
	}

	eventHandler := handler.NewEventHandler(ctx, e.config, e.logger, client, eventChan, opts...)
	if err := start(eventHandler); err != nil {
		eventHandler.Stop()
		return errors.Wrap(err, "failed to start event handler")
	}

	e.eventHandler = eventHandler
	return nil
}
