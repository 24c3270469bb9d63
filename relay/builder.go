package relay

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

const (
	// DefaultSubmitTimeout bounds one destination submission.
	DefaultSubmitTimeout = 5 * time.Minute
	// DefaultEventBuffer is the capacity of each chain's raw event channel.
	DefaultEventBuffer = 256
	// collaboratorTimeout bounds metadata and failure queue calls.
	collaboratorTimeout = 30 * time.Second
)

// DispatcherBuilder is a builder pattern implementation for the dispatcher.
type DispatcherBuilder struct {
	registry      types.ChainRegistry
	logger        *logrus.Logger
	metadata      MetadataStore
	notifier      Notifier
	failures      FailureQueue
	onOutcome     OutcomeHook
	submitTimeout time.Duration
	eventBuffer   int
}

// NewDispatcherBuilder creates a new dispatcher builder instance.
//
// Parameters:
// - registry: the immutable chain registry.
// - logger: the logger for logging purposes.
//
// Returns:
// - *DispatcherBuilder: a new DispatcherBuilder instance.
func NewDispatcherBuilder(registry types.ChainRegistry, logger *logrus.Logger) *DispatcherBuilder {
	return &DispatcherBuilder{
		registry:      registry,
		logger:        logger,
		submitTimeout: DefaultSubmitTimeout,
		eventBuffer:   DefaultEventBuffer,
	}
}

// WithMetadataStore sets the NFT metadata store.
func (b *DispatcherBuilder) WithMetadataStore(store MetadataStore) *DispatcherBuilder {
	b.metadata = store
	return b
}

// WithNotifier sets the outbound notification channel.
func (b *DispatcherBuilder) WithNotifier(notifier Notifier) *DispatcherBuilder {
	b.notifier = notifier
	return b
}

// WithFailureQueue sets the queue failed actions are recorded in.
func (b *DispatcherBuilder) WithFailureQueue(queue FailureQueue) *DispatcherBuilder {
	b.failures = queue
	return b
}

// WithOutcomeHook sets a hook observing every terminal outcome.
func (b *DispatcherBuilder) WithOutcomeHook(hook OutcomeHook) *DispatcherBuilder {
	b.onOutcome = hook
	return b
}

// WithSubmitTimeout bounds each destination submission. Non-positive values are ignored.
func (b *DispatcherBuilder) WithSubmitTimeout(timeout time.Duration) *DispatcherBuilder {
	if timeout > 0 {
		b.submitTimeout = timeout
	}
	return b
}

// WithEventBuffer sets the capacity of each chain's raw event channel.
func (b *DispatcherBuilder) WithEventBuffer(size int) *DispatcherBuilder {
	if size >= 0 {
		b.eventBuffer = size
	}
	return b
}

// Build creates the dispatcher.
//
// Returns:
// - *Dispatcher: the dispatcher.
// - error: an error if the registry or logger is missing.
func (b *DispatcherBuilder) Build() (*Dispatcher, error) {
	if b.registry == nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "chain registry not provided")
	}
	if b.logger == nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "logger not provided")
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = logNotifier{logger: b.logger}
	}

	return &Dispatcher{
		registry:      b.registry,
		logger:        b.logger,
		metadata:      b.metadata,
		notifier:      notifier,
		failures:      b.failures,
		onOutcome:     b.onOutcome,
		submitTimeout: b.submitTimeout,
		eventBuffer:   b.eventBuffer,
	}, nil
}

// logNotifier is used when no notification channel is configured.
type logNotifier struct {
	logger *logrus.Logger
}

func (n logNotifier) Emit(event types.TxExecuted) {
	n.logger.WithFields(logrus.Fields{
		"destination": event.Destination,
		"action_id":   event.ActionID.String(),
		"tx_hash":     event.TxHash,
	}).Info("tx_executed")
}
