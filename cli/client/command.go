package client

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/mergedb/client"
	"github.com/andydunstall/mergedb/pkg/backoff"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/status"
)

const banner = `
                                      _ _
 _ __ ___   ___ _ __ __ _  ___    __| | |__
| '_ ' _ \ / _ \ '__/ _' |/ _ \  / _' | '_ \
| | | | | |  __/ | | (_| |  __/ | (_| | |_) |
|_| |_| |_|\___|_|  \__, |\___|  \__,_|_.__/
                    |___/
`

type options struct {
	addr     string
	timeout  time.Duration
	logLevel string
}

func (o *options) registerFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&o.addr,
		"addr",
		"",
		`
The RPC address of the node to connect to, such as 'localhost:8001'.

If not given the client will prompt for the address.`,
	)
	cmd.PersistentFlags().DurationVar(
		&o.timeout,
		"timeout",
		time.Second*15,
		`
Timeout for each request to the node.`,
	)
	cmd.PersistentFlags().StringVar(
		&o.logLevel,
		"log.level",
		"warn",
		`
Minimum log level to output.

The available levels are 'debug', 'info', 'warn' and 'error'.`,
	)
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "interactive client",
		Long: `Start an interactive client.

The client connects to a node and reads queries from stdin. Type 'HELP' to
list the supported queries.

Examples:
  # Start a client, prompting for the node address.
  mergedb client

  # Start a client connected to localhost:8001.
  mergedb client --addr localhost:8001
`,
	}

	var opts options
	opts.registerFlags(cmd)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		runREPL(&opts)
	}

	cmd.AddCommand(newExecCommand(&opts))

	return cmd
}

func newExecCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [query]",
		Args:  cobra.MinimumNArgs(1),
		Short: "execute a single query",
		Long: `Execute a single query.

Examples:
  mergedb client exec --addr localhost:8001 CINC mykey 5
  mergedb client exec --addr localhost:8001 SGET activities
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if opts.addr == "" {
			fmt.Println("missing addr")
			os.Exit(1)
		}

		c := connect(opts)
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()

		if err := execute(ctx, c, strings.Join(args, " "), os.Stdout); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	}

	return cmd
}

func runREPL(opts *options) {
	scanner := bufio.NewScanner(os.Stdin)

	if opts.addr == "" {
		fmt.Print("enter node's address to connect to (e.g., 127.0.0.1:8001): ")
		if !scanner.Scan() {
			return
		}
		opts.addr = strings.TrimSpace(scanner.Text())
	}

	c := connect(opts)
	defer c.Close()

	fmt.Printf("connected to: %s\n", opts.addr)
	fmt.Print(banner)

	for {
		fmt.Print(":: ")
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		err := execute(ctx, c, line, os.Stdout)
		cancel()
		if err == errIncorrectFormat {
			fmt.Println(err.Error())
			fmt.Println("Type 'HELP' for instructions")
		} else if errorInfo, ok := status.FromError(err); ok {
			fmt.Printf("rejected: %s\n", errorInfo.Error())
		} else if err != nil {
			fmt.Printf("error: %s\n", err.Error())
		}
	}
}

// connect creates a client and waits for the node to become healthy.
func connect(opts *options) *client.Client {
	logger, err := log.NewLogger(opts.logLevel, nil)
	if err != nil {
		fmt.Printf("failed to setup logger: %s\n", err.Error())
		os.Exit(1)
	}

	c, err := client.NewClient(
		opts.addr,
		client.WithTimeout(opts.timeout),
		client.WithLogger(logger),
	)
	if err != nil {
		fmt.Printf("invalid addr: %s\n", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err = backoff.Retry(
		ctx,
		backoff.New(5, time.Millisecond*100, time.Second*5),
		c.Health,
		func(attempt int, err error) {
			logger.Warn(
				"failed to connect to node; retrying",
				zap.String("addr", opts.addr),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	)
	if err != nil {
		fmt.Printf("failed to connect to node: %s: %s\n", opts.addr, err.Error())
		os.Exit(1)
	}
	return c
}
