package solana

import (
	"context"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/connectionmonitor"
)

const healthOK = "ok"

// solanaConnectionManager implements connectionmonitor.Client.
type solanaConnectionManager struct {
	chain *solana
}

// CheckConnection asks the node for its health.
func (m *solanaConnectionManager) CheckConnection(ctx context.Context) error {
	client, err := m.chain.getClient()
	if err != nil {
		return err
	}

	health, err := client.GetHealth(ctx)
	if err != nil {
		return err
	}
	if health != healthOK {
		return errors.Errorf("node unhealthy: %s", health)
	}
	return nil
}

// Reconnect replaces the rpc client. The event stream picks it up on its next poll.
func (m *solanaConnectionManager) Reconnect(context.Context) error {
	if m.chain.config.RpcUrl == "" {
		return errors.Wrap(commonerrors.ErrInvalidConfig, "rpc url not set")
	}

	client := rpc.New(m.chain.config.RpcUrl)

	m.chain.clientMutex.Lock()
	old := m.chain.client
	m.chain.client = client
	m.chain.clientMutex.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			m.chain.logger.WithField("chain", m.chain.config.Name).WithError(err).Debug("Failed to close rpc client")
		}
	}
	return nil
}

func (s *solana) initMonitor(ctx context.Context) error {
	s.monitorMutex.Lock()
	defer s.monitorMutex.Unlock()

	s.monitor = connectionmonitor.NewConnectionMonitor(&solanaConnectionManager{chain: s}, s.logger, s.config.Name)
	return s.monitor.Start(ctx)
}
