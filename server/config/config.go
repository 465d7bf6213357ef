package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-sockaddr"
	"github.com/spf13/pflag"

	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/server/gossip"
)

type ClusterConfig struct {
	// NodeID is a unique identifier for this node in the cluster.
	//
	// If empty a random ID is generated.
	NodeID string `json:"node_id" yaml:"node_id"`

	// Peers contains the RPC addresses of the other nodes in the cluster.
	Peers []string `json:"peers" yaml:"peers"`
}

func (c *ClusterConfig) Validate() error {
	for _, peer := range c.Peers {
		if _, _, err := net.SplitHostPort(peer); err != nil {
			return fmt.Errorf("invalid peer: %s: %w", peer, err)
		}
	}
	return nil
}

func (c *ClusterConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.NodeID,
		"cluster.node-id",
		"",
		`
A unique identifier for the node in the cluster.

Counter updates are attributed to the node ID, so each node must have a
different ID, which must not change while the node has state.

By default a random ID will be generated for the node.`,
	)

	fs.StringSliceVar(
		&c.Peers,
		"cluster.peers",
		nil,
		`
A list of RPC addresses of the other nodes in the cluster to gossip with,
such as '--cluster.peers 10.26.104.14:8001,10.26.104.75:8001'.

The nodes own advertise address is ignored, so all nodes can be configured
with the same peer list.`,
	)
}

type RPCConfig struct {
	// BindAddr is the address to bind to listen for client and peer
	// requests.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`
}

func (c *RPCConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

func (c *RPCConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"rpc.bind-addr",
		":8001",
		`
The host/port to listen for client requests and gossip from peers.

If the host is unspecified it defaults to all listeners, such as
'--rpc.bind-addr :8001' will listen on '0.0.0.0:8001'`,
	)
	fs.StringVar(
		&c.AdvertiseAddr,
		"rpc.advertise-addr",
		"",
		`
RPC listen address to advertise to other nodes in the cluster. This is the
address other nodes will use to gossip with the node.

Such as if the listen address is ':8001', the advertised address may be
'10.26.104.45:8001' or 'node1.cluster:8001'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':8001') the nodes
private IP will be used, such as a bind address of ':8001' may have an
advertise address of '10.26.104.14:8001'.`,
	)
}

type AdminConfig struct {
	// BindAddr is the address to bind to listen for incoming HTTP connections.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the address to advertise to other nodes.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`
}

func (c *AdminConfig) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	return nil
}

func (c *AdminConfig) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(
		&c.BindAddr,
		"admin.bind-addr",
		":8002",
		`
The host/port to listen for incoming admin connections.

If the host is unspecified it defaults to all listeners, such as
'--admin.bind-addr :8002' will listen on '0.0.0.0:8002'`,
	)
	fs.StringVar(
		&c.AdvertiseAddr,
		"admin.advertise-addr",
		"",
		`
Admin listen address to advertise to other nodes in the cluster.

Such as if the listen address is ':8002', the advertised address may be
'10.26.104.45:8002' or 'node1.cluster:8002'.

By default, if the bind address includes an IP to bind to that will be used.
If the bind address does not include an IP (such as ':8002') the nodes
private IP will be used, such as a bind address of ':8002' may have an
advertise address of '10.26.104.14:8002'.`,
	)
}

type Config struct {
	Cluster ClusterConfig `json:"cluster" yaml:"cluster"`
	RPC     RPCConfig     `json:"rpc" yaml:"rpc"`
	Admin   AdminConfig   `json:"admin" yaml:"admin"`
	Gossip  gossip.Config `json:"gossip" yaml:"gossip"`
	Log     log.Config    `json:"log" yaml:"log"`

	// GracePeriod is the duration to gracefully shutdown the server. During
	// the grace period, listeners and idle connections are closed, then waits
	// for active requests to complete and closes their connections.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`
}

func (c *Config) Validate() error {
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	if err := c.RPC.Validate(); err != nil {
		return fmt.Errorf("rpc: %w", err)
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if c.GracePeriod == 0 {
		return fmt.Errorf("missing grace period")
	}

	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Cluster.RegisterFlags(fs)
	c.RPC.RegisterFlags(fs)
	c.Admin.RegisterFlags(fs)
	c.Gossip.RegisterFlags(fs)
	c.Log.RegisterFlags(fs)

	fs.DurationVar(
		&c.GracePeriod,
		"grace-period",
		time.Minute,
		`
Maximum duration after a shutdown signal is received (SIGTERM or
SIGINT) to gracefully shutdown the server node before terminating.

This includes waiting for in-flight client requests to complete.`,
	)
}

// Resolve fills in the generated and derived fields that were left empty.
//
// An empty node ID is replaced with a random ID, empty advertise addresses
// are derived from the bind addresses, and the nodes own RPC advertise
// address is removed from the peers.
func (c *Config) Resolve() error {
	if c.Cluster.NodeID == "" {
		c.Cluster.NodeID = uuid.NewString()
	}

	if c.RPC.AdvertiseAddr == "" {
		advertiseAddr, err := advertiseAddrFromBindAddr(c.RPC.BindAddr)
		if err != nil {
			return fmt.Errorf("rpc: %w", err)
		}
		c.RPC.AdvertiseAddr = advertiseAddr
	}
	if c.Admin.AdvertiseAddr == "" {
		advertiseAddr, err := advertiseAddrFromBindAddr(c.Admin.BindAddr)
		if err != nil {
			return fmt.Errorf("admin: %w", err)
		}
		c.Admin.AdvertiseAddr = advertiseAddr
	}

	var peers []string
	for _, peer := range c.Cluster.Peers {
		if peer == c.RPC.AdvertiseAddr || peer == c.RPC.BindAddr {
			continue
		}
		peers = append(peers, peer)
	}
	c.Cluster.Peers = peers

	return nil
}

func advertiseAddrFromBindAddr(bindAddr string) (string, error) {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "0.0.0.0" + bindAddr
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host == "0.0.0.0" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return ip + ":" + port, nil
	}
	return bindAddr, nil
}
