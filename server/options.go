package server

import (
	"net"

	"github.com/andydunstall/mergedb/server/gossip"
)

type options struct {
	rpcLn   net.Listener
	adminLn net.Listener
	dialer  gossip.Dialer
}

type Option interface {
	apply(*options)
}

type rpcListenerOption struct {
	Listener net.Listener
}

func (o rpcListenerOption) apply(opts *options) {
	opts.rpcLn = o.Listener
}

// WithReplicationListener configures the listener for client and peer
// requests. If not given the node listens on the configured RPC bind
// address.
func WithReplicationListener(ln net.Listener) Option {
	return rpcListenerOption{Listener: ln}
}

type adminListenerOption struct {
	Listener net.Listener
}

func (o adminListenerOption) apply(opts *options) {
	opts.adminLn = o.Listener
}

// WithAdminListener configures the admin listener. If not given the node
// listens on the configured admin bind address.
func WithAdminListener(ln net.Listener) Option {
	return adminListenerOption{Listener: ln}
}

type dialerOption struct {
	Dialer gossip.Dialer
}

func (o dialerOption) apply(opts *options) {
	opts.dialer = o.Dialer
}

// WithDialer configures the dialer used to connect to peers.
func WithDialer(dialer gossip.Dialer) Option {
	return dialerOption{Dialer: dialer}
}
