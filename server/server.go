package server

import (
	"context"
	"fmt"
	"net"

	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/andydunstall/mergedb/client"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/server/admin"
	"github.com/andydunstall/mergedb/server/config"
	"github.com/andydunstall/mergedb/server/gossip"
	"github.com/andydunstall/mergedb/server/replication"
	"github.com/andydunstall/mergedb/server/store"
)

// Server is a node in the cluster.
//
// The node accepts client requests and peer gossip on the RPC listener,
// periodically gossips its state to its peers, and serves metrics and
// status on the admin listener.
type Server struct {
	rpcLn   net.Listener
	adminLn net.Listener

	store *store.Store

	replicationServer *replication.Server

	gossiper *gossip.Engine

	adminServer *admin.Server

	conf *config.Config

	logger log.Logger
}

func NewServer(conf *config.Config, logger log.Logger, opts ...Option) (*Server, error) {
	options := options{
		dialer: dialPeer,
	}
	for _, o := range opts {
		o.apply(&options)
	}

	s := &Server{
		rpcLn:   options.rpcLn,
		adminLn: options.adminLn,
		conf:    conf,
		logger:  logger,
	}

	if s.rpcLn == nil {
		ln, err := net.Listen("tcp", conf.RPC.BindAddr)
		if err != nil {
			return nil, fmt.Errorf("rpc listen: %s: %w", conf.RPC.BindAddr, err)
		}
		s.rpcLn = ln
	}
	if s.adminLn == nil {
		ln, err := net.Listen("tcp", conf.Admin.BindAddr)
		if err != nil {
			s.rpcLn.Close()
			return nil, fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
		}
		s.adminLn = ln
	}

	registry := prometheus.NewRegistry()

	s.adminServer = admin.NewServer(registry, logger)

	s.store = store.NewStore(logger)
	s.store.Metrics().Register(registry)
	s.adminServer.AddStatus("/store", store.NewStatus(s.store))

	service := replication.NewService(conf.Cluster.NodeID, s.store, logger)
	s.replicationServer = replication.NewServer(service, logger)
	s.replicationServer.Register(registry)

	s.gossiper = gossip.NewEngine(
		conf.Cluster.Peers,
		s.store,
		conf.Gossip,
		options.dialer,
		logger,
	)
	s.gossiper.Metrics().Register(registry)
	s.adminServer.AddStatus("/gossip", gossip.NewStatus(s.gossiper))

	return s, nil
}

// Run runs the node until the context is cancelled or a component fails,
// then gracefully shuts down.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(
		"starting node",
		zap.String("node-id", s.conf.Cluster.NodeID),
		zap.String("rpc-addr", s.rpcLn.Addr().String()),
		zap.String("admin-addr", s.adminLn.Addr().String()),
		zap.Strings("peers", s.conf.Cluster.Peers),
	)

	var group rungroup.Group

	// Termination handler.
	ctx, cancel := context.WithCancel(ctx)
	group.Add(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")
		return nil
	}, func(error) {
		cancel()
	})

	// Replication server.
	group.Add(func() error {
		if err := s.replicationServer.Serve(s.rpcLn); err != nil {
			return fmt.Errorf("replication server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		if err := s.replicationServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to gracefully shutdown replication server", zap.Error(err))
		}

		s.logger.Info("replication server shut down")
	})

	// Gossip.
	gossipCtx, gossipCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		return s.gossiper.Run(gossipCtx)
	}, func(error) {
		gossipCancel()
		if err := s.gossiper.Close(); err != nil {
			s.logger.Warn("failed to close gossip", zap.Error(err))
		}

		s.logger.Info("gossip shut down")
	})

	// Admin server.
	group.Add(func() error {
		if err := s.adminServer.Serve(s.adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		s.logger.Info("admin server shut down")
	})

	if err := group.Run(); err != nil {
		return err
	}

	s.logger.Info("shutdown complete")

	return nil
}

// RPCAddr returns the address of the RPC listener.
func (s *Server) RPCAddr() string {
	return s.rpcLn.Addr().String()
}

// AdminAddr returns the address of the admin listener.
func (s *Server) AdminAddr() string {
	return s.adminLn.Addr().String()
}

func (s *Server) Store() *store.Store {
	return s.store
}

func (s *Server) Gossiper() *gossip.Engine {
	return s.gossiper
}

func dialPeer(ctx context.Context, addr string) (gossip.PeerConn, error) {
	conn, err := client.DialPeer(ctx, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
