package status

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andydunstall/mergedb/server/gossip"
	"github.com/andydunstall/mergedb/server/status/client"
	"github.com/andydunstall/mergedb/server/status/config"
)

func newPeersCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "inspect gossip peers",
		Long: `Inspect gossip peers.

Queries the node for its configured peers and whether it has an open
connection to each.

Examples:
  mergedb status peers
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showPeers(conf)
	}

	return cmd
}

type peersOutput struct {
	Peers []gossip.PeerStatus `json:"peers"`
}

func showPeers(conf *config.Config) {
	c := newClient(conf)
	defer c.Close()

	peers, err := client.NewGossip(c).Peers()
	if err != nil {
		fmt.Printf("failed to get peers: %s\n", err.Error())
		os.Exit(1)
	}

	printYAML(peersOutput{
		Peers: peers,
	})
}
