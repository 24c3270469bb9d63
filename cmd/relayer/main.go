package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ClipFinance/bridge-relay/blockstore"
	"github.com/ClipFinance/bridge-relay/chainmanager"
	"github.com/ClipFinance/bridge-relay/chains"
	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/common/types"
	"github.com/ClipFinance/bridge-relay/config"
	"github.com/ClipFinance/bridge-relay/connectionmonitor"
	"github.com/ClipFinance/bridge-relay/dbconfig"
	"github.com/ClipFinance/bridge-relay/notifier"
	"github.com/ClipFinance/bridge-relay/relay"
)

var Version = "0.1.0"

func main() {
	app := &cli.App{
		Name:    "relayer",
		Usage:   "Relays bridge events between chains",
		Version: Version,
		Flags:   config.Flags,
		Action:  run,
		Commands: []*cli.Command{
			&failedCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Error("Relayer stopped")
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String(config.ConfigFileFlag.Name))
	if err != nil {
		return err
	}
	if level := cliCtx.String(config.LogLevelFlag.Name); level != "" {
		cfg.LogLevel = level
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger.WithField("version", Version).Info("Starting relayer")

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *dbconfig.DBConfig
	if cfg.Database.DSN != "" {
		db, err = dbconfig.NewDBConfig(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		reportPendingFailures(ctx, db, cfg.Relay.FailedActionBatch, logger)
	} else {
		logger.Warn("No database configured, metadata updates and failed actions are disabled")
	}

	var factoryOpts []chains.FactoryOption
	if cfg.Redis.Addr != "" {
		client, err := blockstore.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		factoryOpts = append(factoryOpts, chains.WithCheckpointer(blockstore.NewBlockStore(client, cfg.Redis.Namespace)))
	}

	chainConfigs, err := loadChainConfigs(ctx, cliCtx.Bool(config.ChainsFromDBFlag.Name), cfg, db)
	if err != nil {
		return err
	}

	registry, err := chainmanager.BuildRegistry(ctx, chains.NewChainFactory(factoryOpts...), chainConfigs, logger)
	if err != nil {
		return errors.Wrap(err, "failed to build chain registry")
	}
	defer func() {
		for _, chain := range registry.All() {
			chain.ShutdownListeners()
		}
	}()

	builder := relay.NewDispatcherBuilder(registry, logger).
		WithSubmitTimeout(cfg.Relay.SubmitTimeout).
		WithEventBuffer(cfg.Relay.EventBuffer)
	if db != nil {
		builder.WithMetadataStore(db).WithFailureQueue(db)
	}

	if cfg.Notifier.URL != "" {
		// The notifier outlives the signal context until the dispatcher has
		// finished its in-flight submissions.
		n, stopNotifier, err := startNotifier(context.WithoutCancel(ctx), cfg.Notifier, logger)
		if err != nil {
			return err
		}
		defer stopNotifier()
		builder.WithNotifier(n)
	}

	dispatcher, err := builder.Build()
	if err != nil {
		return err
	}

	logger.WithField("chains", registry.Len()).Info("Relay running")
	return dispatcher.Run(ctx)
}

func loadChainConfigs(ctx context.Context, fromDB bool, cfg *config.Config, db *dbconfig.DBConfig) ([]*types.ChainConfig, error) {
	if !fromDB {
		return cfg.ChainConfigs(), nil
	}
	if db == nil {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "--chains-from-db requires database.dsn")
	}

	configs, err := db.LoadChainConfigs(ctx)
	if err != nil {
		return nil, err
	}
	config.ApplyPrivateKeys(configs, os.LookupEnv)
	return configs, nil
}

// startNotifier dials the notification socket and keeps it connected. The
// returned stop function flushes queued notifications and closes the socket.
func startNotifier(ctx context.Context, cfg config.NotifierConfig, logger *logrus.Logger) (*notifier.Notifier, func(), error) {
	n := notifier.NewNotifier(cfg.URL, logger,
		notifier.WithQueueSize(cfg.QueueSize),
		notifier.WithWriteTimeout(cfg.WriteTimeout),
	)
	if err := n.Connect(ctx); err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect notifier")
	}

	runCtx, cancel := context.WithCancel(ctx)
	monitor := connectionmonitor.NewConnectionMonitor(n, logger, "notifier")
	if err := monitor.Start(runCtx); err != nil {
		cancel()
		n.Close()
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Run(runCtx)
	}()

	stop := func() {
		cancel()
		<-done
		monitor.Stop()
		n.Close()
	}
	return n, stop, nil
}

func reportPendingFailures(ctx context.Context, db *dbconfig.DBConfig, limit int, logger *logrus.Logger) {
	pending, err := db.ListPending(ctx, limit)
	if err != nil {
		logger.WithError(err).Warn("Failed to list pending failed actions")
		return
	}
	if len(pending) == 0 {
		return
	}

	for _, action := range pending {
		logger.WithFields(logrus.Fields{
			"id":          action.ID,
			"origin":      action.Origin,
			"destination": action.Destination,
			"action_id":   action.ActionID,
			"reason":      action.Reason,
		}).Warn("Unresolved failed action")
	}
	logger.WithField("count", len(pending)).Warn("Failed actions awaiting reconciliation")
}
