// Package notifier publishes "tx_executed" notifications over a websocket.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
)

const (
	// EventTxExecuted is the event name of a completed relay action.
	EventTxExecuted = "tx_executed"

	defaultQueueSize    = 1024
	defaultWriteTimeout = 10 * time.Second
)

// Message is the JSON frame written to the socket.
type Message struct {
	Event string        `json:"event"`
	Args  []interface{} `json:"args"`
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithQueueSize sets the number of notifications buffered while the socket is busy.
func WithQueueSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queue = make(chan Message, size)
		}
	}
}

// WithWriteTimeout sets the deadline of a single socket write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.writeTimeout = timeout
		}
	}
}

// Notifier is a fire-and-forget websocket publisher. Emit never blocks; a
// single writer goroutine started by Run drains the queue.
type Notifier struct {
	url          string
	logger       *logrus.Logger
	dialer       *websocket.Dialer
	queue        chan Message
	writeTimeout time.Duration

	connMutex sync.RWMutex
	conn      *websocket.Conn
}

// NewNotifier creates a notifier for the websocket endpoint url. The socket
// is opened by Connect.
//
// Parameters:
// - url: the ws:// or wss:// endpoint.
// - logger: the logger for logging purposes.
// - opts: optional settings.
//
// Returns:
// - *Notifier: the new notifier.
func NewNotifier(url string, logger *logrus.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		url:          url,
		logger:       logger,
		dialer:       websocket.DefaultDialer,
		queue:        make(chan Message, defaultQueueSize),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Connect opens the socket.
//
// Parameters:
// - ctx: the context bounding the dial.
//
// Returns:
// - error: an error if the endpoint cannot be reached.
func (n *Notifier) Connect(ctx context.Context) error {
	return n.Reconnect(ctx)
}

// Emit queues a "tx_executed" notification. When the queue is full the
// notification is dropped with a warning.
//
// Parameters:
// - event: the executed transaction.
func (n *Notifier) Emit(event types.TxExecuted) {
	msg := Message{
		Event: EventTxExecuted,
		Args:  []interface{}{uint32(event.Destination), event.ActionID.String(), event.TxHash},
	}

	select {
	case n.queue <- msg:
	default:
		n.logger.WithFields(logrus.Fields{
			"destination": event.Destination,
			"action_id":   event.ActionID.String(),
			"tx_hash":     event.TxHash,
		}).Warn("Notification queue full, dropping tx_executed")
	}
}

// Run writes queued notifications until ctx is done, then writes what is
// still queued and returns.
//
// Parameters:
// - ctx: the context bounding the writer.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			n.drain()
			return
		case msg := <-n.queue:
			n.publish(msg)
		}
	}
}

// drain writes the queued notifications without waiting for new ones.
func (n *Notifier) drain() {
	for {
		select {
		case msg := <-n.queue:
			n.publish(msg)
		default:
			return
		}
	}
}

func (n *Notifier) publish(msg Message) {
	if err := n.write(msg); err != nil {
		n.logger.WithFields(logrus.Fields{
			"alert": true,
			"event": msg.Event,
			"args":  msg.Args,
		}).WithError(err).Error("Failed to publish notification")
	}
}

// CheckConnection pings the endpoint.
func (n *Notifier) CheckConnection(ctx context.Context) error {
	n.connMutex.RLock()
	conn := n.conn
	n.connMutex.RUnlock()

	if conn == nil {
		return commonerrors.ErrClientNotReady
	}

	deadline := time.Now().Add(n.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return errors.Wrap(err, "failed to ping notification endpoint")
	}
	return nil
}

// Reconnect replaces the socket with a new one.
func (n *Notifier) Reconnect(ctx context.Context) error {
	conn, _, err := n.dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to dial notification endpoint %s", n.url)
	}

	n.connMutex.Lock()
	old := n.conn
	n.conn = conn
	n.connMutex.Unlock()

	if old != nil {
		old.Close()
	}

	go n.discardIncoming(conn)

	n.logger.WithField("url", n.url).Info("Notification socket connected")
	return nil
}

// Close closes the socket.
func (n *Notifier) Close() error {
	n.connMutex.Lock()
	defer n.connMutex.Unlock()

	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

func (n *Notifier) write(msg Message) error {
	// Writes are serialised by Run; the read lock only guards the pointer.
	n.connMutex.RLock()
	defer n.connMutex.RUnlock()

	if n.conn == nil {
		return commonerrors.ErrClientNotReady
	}

	if err := n.conn.SetWriteDeadline(time.Now().Add(n.writeTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	if err := n.conn.WriteJSON(msg); err != nil {
		return errors.Wrap(err, "failed to write notification")
	}
	return nil
}

// discardIncoming reads the socket so control frames are processed.
func (n *Notifier) discardIncoming(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
