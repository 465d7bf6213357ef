package status

import (
	"fmt"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/mergedb/server/status/client"
	"github.com/andydunstall/mergedb/server/status/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each node exposes a status API on its admin port to inspect the state of the
node, this can be used to answer questions such as:
* What keys does the node hold?
* What is the replicated state of a key?
* Is the node connected to its peers?

See 'status --help' for the availale commands.

Examples:
  # Inspect the keys stored on the node.
  mergedb status keys

  # Inspect the state of key 'mykey'.
  mergedb status key mykey

  # Inspect the peers of node 10.26.104.56:8002.
  mergedb status peers --server.url http://10.26.104.56:8002
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newKeysCommand(&conf))
	cmd.AddCommand(newKeyCommand(&conf))
	cmd.AddCommand(newPeersCommand(&conf))

	return cmd
}

func newClient(conf *config.Config) *client.Client {
	if err := conf.Validate(); err != nil {
		fmt.Printf("invalid config: %s\n", err.Error())
		os.Exit(1)
	}

	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.Server.URL)
	return client.NewClient(url)
}

func printYAML(v any) {
	b, _ := yaml.Marshal(v)
	fmt.Println(string(b))
}
