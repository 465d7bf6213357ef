package status

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andydunstall/mergedb/server/status/client"
	"github.com/andydunstall/mergedb/server/status/config"
	"github.com/andydunstall/mergedb/server/store"
)

func newKeysCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "inspect stored keys",
		Long: `Inspect stored keys.

Queries the node for each key it stores along with the kind of value.

Examples:
  mergedb status keys
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showKeys(conf)
	}

	return cmd
}

type keysOutput struct {
	Keys []store.KeyInfo `json:"keys"`
}

func showKeys(conf *config.Config) {
	c := newClient(conf)
	defer c.Close()

	keys, err := client.NewStore(c).Keys()
	if err != nil {
		fmt.Printf("failed to get keys: %s\n", err.Error())
		os.Exit(1)
	}

	printYAML(keysOutput{
		Keys: keys,
	})
}

func newKeyCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Args:  cobra.ExactArgs(1),
		Short: "inspect a key",
		Long: `Inspect a key.

Queries the node for the replicated state of the key with the given name,
including the per-node counter totals or the version history of each tag.

Examples:
  mergedb status key mykey
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showKey(args[0], conf)
	}

	return cmd
}

func showKey(key string, conf *config.Config) {
	c := newClient(conf)
	defer c.Close()

	state, err := client.NewStore(c).Key(key)
	if err != nil {
		fmt.Printf("failed to get key: %s: %s\n", key, err.Error())
		os.Exit(1)
	}

	printYAML(state)
}
