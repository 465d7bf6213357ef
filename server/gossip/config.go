package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	// Interval is the rate to initiate a gossip round.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Fanout is the number of peers to push to in each round.
	Fanout int `json:"fanout" yaml:"fanout"`

	// Timeout is the timeout when dialing a peer and when waiting for a
	// peer to acknowledge a pushed key.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	if c.Fanout <= 0 {
		return fmt.Errorf("fanout must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("missing timeout")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.DurationVar(
		&c.Interval,
		"gossip.interval",
		time.Second*2,
		`
The interval to initiate rounds of gossip.

Each round pushes the state of every key to a random subset of peers.`,
	)

	fs.IntVar(
		&c.Fanout,
		"gossip.fanout",
		3,
		`
The number of peers to push to in each gossip round.

If there are fewer peers than the fanout, all peers are selected.`,
	)

	fs.DurationVar(
		&c.Timeout,
		"gossip.timeout",
		time.Second*5,
		`
Timeout when connecting to a peer and when waiting for a peer to acknowledge
a pushed key.

If a peer doesn't respond within the timeout its connection is closed and
the node reconnects in the next round.`,
	)
}
