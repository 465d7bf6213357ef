package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/mergedb/cli/client"
	"github.com/andydunstall/mergedb/cli/node"
	"github.com/andydunstall/mergedb/cli/status"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mergedb [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `MergeDB is a replicated key-value store built on CRDTs.

Each node accepts writes locally and periodically gossips its state to a
random subset of its peers. Since every value type has a merge that is
commutative, associative and idempotent, all nodes converge to the same
value regardless of message order, duplication or delay.

Supported value types are counters (PN-Counter) and tag sets (Add-Wins set).

Start a node with:

  $ mergedb node --cluster.peers 10.26.104.14:8001,10.26.104.75:8001

Then connect to the node with the interactive client:

  $ mergedb client --addr localhost:8001

You can also inspect the status of a node using:

  $ mergedb status keys
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(client.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
