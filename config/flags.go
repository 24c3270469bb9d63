package config

import "github.com/urfave/cli/v2"

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML configuration file",
		Value:   "config.yaml",
		EnvVars: []string{"RELAYER_CONFIG"},
	}

	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Overrides log_level: trace, debug, info, warn, error",
	}

	ChainsFromDBFlag = &cli.BoolFlag{
		Name:  "chains-from-db",
		Usage: "Loads the active chains from the database instead of the config file",
	}
)

// Flags are the flags of the relayer command.
var Flags = []cli.Flag{
	ConfigFileFlag,
	LogLevelFlag,
	ChainsFromDBFlag,
}
