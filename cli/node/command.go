package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/mergedb/pkg/config"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/server"
	serverconfig "github.com/andydunstall/mergedb/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a node",
		Long: `Start a node.

The node accepts client reads and writes, and periodically gossips its state
to a random subset of its peers.

Peers are configured statically using '--cluster.peers'. The nodes own
address may be included, so every node can share the same peer list.

Examples:
  # Start a node.
  mergedb node

  # Start a node, listening for client and peer requests on :8001 and admin
  # connections on :8002.
  mergedb node --rpc.bind-addr :8001 --admin.bind-addr :8002

  # Start a node with two peers.
  mergedb node --cluster.node-id node-1 --cluster.peers 10.26.104.14:8001,10.26.104.75:8001

  # Start a node using a config file, with environment variables expanded.
  mergedb node --config.path ./mergedb.yaml --config.expand-env
`,
	}

	var conf serverconfig.Config

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := config.Load(configPath, &conf, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if err := conf.Resolve(); err != nil {
			logger.Error("invalid configuration", zap.Error(err))
			os.Exit(1)
		}

		if err := run(&conf, logger); err != nil {
			logger.Error("failed to run server", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *serverconfig.Config, logger log.Logger) error {
	logger.Info("starting mergedb node", zap.Any("conf", conf))

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	node, err := server.NewServer(conf, logger)
	if err != nil {
		return err
	}
	return node.Run(ctx)
}
