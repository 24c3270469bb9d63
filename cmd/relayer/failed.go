package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	commonerrors "github.com/ClipFinance/bridge-relay/common/errors"
	"github.com/ClipFinance/bridge-relay/config"
	"github.com/ClipFinance/bridge-relay/dbconfig"
)

var failedCommand = cli.Command{
	Name:  "failed",
	Usage: "inspect the failed action queue",
	Description: "The failed command lists actions the relay could not complete and marks them resolved\n" +
		"\tonce an operator has reconciled them: relayer failed resolve <id>",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "list pending failed actions",
			Action: listFailed,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "limit", Usage: "Maximum number of actions", Value: 100},
			},
		},
		{
			Name:      "resolve",
			Usage:     "mark a failed action resolved",
			ArgsUsage: "<id>",
			Action:    resolveFailed,
		},
	},
}

func openDB(cliCtx *cli.Context) (*dbconfig.DBConfig, error) {
	cfg, err := config.Load(cliCtx.String(config.ConfigFileFlag.Name))
	if err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, errors.Wrap(commonerrors.ErrInvalidConfig, "database.dsn not set")
	}
	return dbconfig.NewDBConfig(cliCtx.Context, cfg.Database.DSN)
}

func listFailed(cliCtx *cli.Context) error {
	db, err := openDB(cliCtx)
	if err != nil {
		return err
	}
	defer db.Close()

	pending, err := db.ListPending(cliCtx.Context, cliCtx.Int("limit"))
	if err != nil {
		return err
	}

	out := cliCtx.App.Writer
	for _, action := range pending {
		fmt.Fprintf(out, "%s\t%d -> %d\t%s\t%s\t%s\t%s\n",
			action.ID,
			action.Origin,
			action.Destination,
			action.Kind,
			action.ActionID,
			action.Reason,
			strconv.Quote(action.Error),
		)
	}
	return nil
}

func resolveFailed(cliCtx *cli.Context) error {
	id := cliCtx.Args().First()
	if id == "" {
		return errors.New("failed action id required")
	}

	db, err := openDB(cliCtx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.MarkResolved(cliCtx.Context, id); err != nil {
		return err
	}
	fmt.Fprintf(cliCtx.App.Writer, "resolved %s\n", id)
	return nil
}
