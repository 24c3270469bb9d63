package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/connectionmonitor"
)

// clientMonitor implements connectionmonitor.Client for the chain's rpc client.
type clientMonitor struct {
	chain *evm
}

func (e *evm) initMonitor(ctx context.Context) error {
	e.monitorMutex.Lock()
	defer e.monitorMutex.Unlock()

	e.monitor = connectionmonitor.NewConnectionMonitor(&clientMonitor{chain: e}, e.logger, e.config.Name)
	return e.monitor.Start(ctx)
}

// CheckConnection reads the latest block number.
func (m *clientMonitor) CheckConnection(ctx context.Context) error {
	client, err := m.chain.getClient()
	if err != nil {
		return err
	}

	_, err = client.BlockNumber(ctx)
	return errors.Wrap(err, "failed to get block number")
}

// Reconnect dials a fresh client and swaps it in once it proves to serve the
// configured chain id.
func (m *clientMonitor) Reconnect(ctx context.Context) error {
	config := m.chain.config

	client, err := ethclient.DialContext(ctx, endpoint(config))
	if err != nil {
		return errors.Wrap(err, "failed to dial client")
	}

	if config.ChainID != 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return errors.Wrap(err, "failed to get chain id")
		}
		if !id.IsUint64() || id.Uint64() != config.ChainID {
			client.Close()
			return errors.Wrapf(commonerrors.ErrInvalidConfig, "endpoint serves chain %s, want %d", id, config.ChainID)
		}
	}

	m.chain.swapClient(client)
	return nil
}

// swapClient replaces the rpc client and hands it to the event handler, which
// resumes from its last processed block.
func (e *evm) swapClient(client ethClient) {
	e.clientMutex.Lock()
	old := e.client
	e.client = client
	e.clientMutex.Unlock()

	if old != nil {
		old.Close()
	}

	e.eventHandlerMutex.Lock()
	defer e.eventHandlerMutex.Unlock()
	if e.eventHandler != nil {
		e.eventHandler.UpdateClient(client)
	}
}
