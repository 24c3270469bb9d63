package connectionmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHealthCheckInterval defines the default interval between connection health checks.
	DefaultHealthCheckInterval = 30 * time.Second
	// DefaultReconnectDelay defines the default pause between reconnection attempts.
	DefaultReconnectDelay = 5 * time.Second
	// DefaultMaxReconnectAttempts defines the default number of reconnection attempts per failed check.
	DefaultMaxReconnectAttempts = 3
)

// ConnectionMonitor represents connection state monitoring interface
type ConnectionMonitor interface {
	// Start starts connection monitoring
	Start(ctx context.Context) error
	// Stop stops connection monitoring
	Stop()
}

// Client is a long-lived connection that can be checked and re-established:
// a chain RPC client or the notifier socket.
type Client interface {
	// CheckConnection checks if connection is alive
	CheckConnection(ctx context.Context) error
	// Reconnect attempts to re-establish the connection
	Reconnect(ctx context.Context) error
}

// Option configures a connection monitor.
type Option func(*connectionMonitor)

// WithInterval sets the health check interval.
func WithInterval(interval time.Duration) Option {
	return func(m *connectionMonitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithReconnectPolicy sets the number of reconnection attempts and the pause between them.
func WithReconnectPolicy(attempts int, delay time.Duration) Option {
	return func(m *connectionMonitor) {
		if attempts > 0 {
			m.maxAttempts = attempts
		}
		m.reconnectDelay = delay
	}
}

// WithOnReconnect registers a callback run after every successful reconnection.
func WithOnReconnect(fn func(ctx context.Context)) Option {
	return func(m *connectionMonitor) { m.onReconnect = fn }
}

type connectionMonitor struct {
	client         Client
	logger         *logrus.Logger
	name           string
	interval       time.Duration
	reconnectDelay time.Duration
	maxAttempts    int
	onReconnect    func(ctx context.Context)

	stopChan     chan struct{}
	isMonitoring bool
	monitorMutex sync.RWMutex
}

// NewConnectionMonitor creates a new connection monitor instance.
//
// Parameters:
// - client: the connection to monitor.
// - logger: the logger for logging purposes.
// - name: the name of the monitored connection, usually the chain name.
// - opts: optional settings.
//
// Returns:
// - ConnectionMonitor: the new connection monitor instance.
func NewConnectionMonitor(
	client Client,
	logger *logrus.Logger,
	name string,
	opts ...Option,
) ConnectionMonitor {
	m := &connectionMonitor{
		client:         client,
		logger:         logger,
		name:           name,
		interval:       DefaultHealthCheckInterval,
		reconnectDelay: DefaultReconnectDelay,
		maxAttempts:    DefaultMaxReconnectAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start starts connection monitoring.
//
// Parameters:
// - ctx: the context for managing the request.
//
// Returns:
// - error: an error if the connection monitor is already running.
func (m *connectionMonitor) Start(ctx context.Context) error {
	m.monitorMutex.Lock()
	if m.isMonitoring {
		m.monitorMutex.Unlock()
		return errors.Errorf("connection monitor is already running for %s", m.name)
	}
	m.isMonitoring = true
	m.stopChan = make(chan struct{})
	stopChan := m.stopChan
	m.monitorMutex.Unlock()

	go m.monitorConnection(ctx, stopChan)
	return nil
}

// Stop stops connection monitoring. A stopped monitor can be started again.
func (m *connectionMonitor) Stop() {
	m.monitorMutex.Lock()
	defer m.monitorMutex.Unlock()

	if !m.isMonitoring {
		return
	}

	close(m.stopChan)
	m.isMonitoring = false
}

// monitorConnection runs the health check loop until ctx is done or the monitor is stopped.
func (m *connectionMonitor) monitorConnection(ctx context.Context, stopChan <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.WithField("chain", m.name).Info("Connection monitoring stopped due to context cancellation")
			return

		case <-stopChan:
			m.logger.WithField("chain", m.name).Info("Connection monitoring stopped")
			return

		case <-ticker.C:
			if err := m.checkAndReconnect(ctx); err != nil {
				m.logger.WithFields(logrus.Fields{
					"chain": m.name,
					"alert": true,
				}).WithError(err).Error("Failed to check or reconnect")
			}
		}
	}
}

// checkAndReconnect checks the connection state and attempts to reconnect if needed.
//
// Parameters:
// - ctx: the context for managing the request.
//
// Returns:
// - error: an error if every reconnection attempt fails.
func (m *connectionMonitor) checkAndReconnect(ctx context.Context) error {
	err := m.client.CheckConnection(ctx)
	if err == nil {
		m.logger.WithField("chain", m.name).Debug("Ping successful")
		return nil
	}

	m.logger.WithField("chain", m.name).WithError(err).Warn("Connection check failed, attempting to reconnect")

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err := m.client.Reconnect(ctx)
		if err == nil {
			m.logger.WithFields(logrus.Fields{
				"chain":   m.name,
				"attempt": attempt,
			}).Info("Client successfully reconnected")

			if m.onReconnect != nil {
				m.onReconnect(ctx)
			}
			return nil
		}

		m.logger.WithFields(logrus.Fields{
			"chain":   m.name,
			"attempt": attempt,
		}).WithError(err).Error("Reconnection attempt failed")

		if attempt == m.maxAttempts {
			return errors.Wrapf(err, "failed to reconnect %s", m.name)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.reconnectDelay):
		}
	}

	return nil
}
