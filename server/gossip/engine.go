package gossip

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andydunstall/mergedb/pkg/crdt"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/protocol"
	"github.com/andydunstall/mergedb/server/store"
)

// PeerStatus describes a configured peer.
type PeerStatus struct {
	Addr      string `json:"addr"`
	Connected bool   `json:"connected"`
}

// Engine propagates the local store to peers using push based anti-entropy.
//
// Each round selects a random subset of peers and pushes the state of every
// key to each selected peer. Since merges are idempotent, pushing the full
// state is always safe, and the cluster converges once every node has
// (transitively) pushed to every other node.
type Engine struct {
	peers []string

	store *store.Store

	pool *pool

	config Config

	metrics *Metrics

	closed *atomic.Bool

	logger log.Logger
}

func NewEngine(
	peers []string,
	store *store.Store,
	config Config,
	dialer Dialer,
	logger log.Logger,
) *Engine {
	logger = logger.WithSubsystem("gossip")
	metrics := newMetrics()
	return &Engine{
		peers:   peers,
		store:   store,
		pool:    newPool(dialer, config.Timeout, metrics, logger),
		config:  config,
		metrics: metrics,
		closed:  atomic.NewBool(false),
		logger:  logger,
	}
}

// Run runs gossip rounds at the configured interval until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info(
		"starting gossip",
		zap.Strings("peers", e.peers),
		zap.Duration("interval", e.config.Interval),
		zap.Int("fanout", e.config.Fanout),
	)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Add 10% jitter to avoid nodes synchronising.
			jitter := time.Duration(rand.Int63n(int64(e.config.Interval)/10 + 1))
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return nil
			}

			if err := e.Round(ctx); err != nil {
				e.logger.Warn("gossip round failed", zap.Error(err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Round runs a single round of gossip, pushing the local state to up to
// 'fanout' random peers concurrently.
//
// Failing to push to one peer doesn't affect the others. Returns the joined
// errors of each failed peer.
func (e *Engine) Round(ctx context.Context) error {
	if e.closed.Load() {
		return fmt.Errorf("closed")
	}

	e.metrics.RoundsTotal.Inc()

	peers := e.selectPeers()
	if len(peers) == 0 {
		return nil
	}

	snapshot := e.store.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	e.logger.Debug(
		"gossip round",
		zap.Strings("peers", peers),
		zap.Int("keys", len(keys)),
	)

	errs := make([]error, len(peers))
	var group errgroup.Group
	for i, addr := range peers {
		group.Go(func() error {
			if err := e.push(ctx, addr, keys, snapshot); err != nil {
				e.logger.Warn(
					"failed to push to peer",
					zap.String("addr", addr),
					zap.Error(err),
				)
				errs[i] = fmt.Errorf("push: %s: %w", addr, err)
			}
			return nil
		})
	}
	// Errors are collected per peer so every push completes.
	_ = group.Wait()

	return errors.Join(errs...)
}

// Peers returns the configured peers and whether each has a pooled
// connection.
func (e *Engine) Peers() []PeerStatus {
	statuses := make([]PeerStatus, 0, len(e.peers))
	for _, addr := range e.peers {
		statuses = append(statuses, PeerStatus{
			Addr:      addr,
			Connected: e.pool.Connected(addr),
		})
	}
	return statuses
}

func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Close closes all peer connections. Subsequent rounds will fail.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return e.pool.Close()
}

func (e *Engine) push(
	ctx context.Context,
	addr string,
	keys []string,
	snapshot map[string]crdt.Value,
) error {
	conn, err := e.pool.Get(ctx, addr)
	if err != nil {
		e.metrics.PushesTotal.WithLabelValues("dial_error").Inc()
		return err
	}

	for _, key := range keys {
		req, err := protocol.NewGossipChangesRequest(key, snapshot[key])
		if errors.Is(err, protocol.ErrUnsupportedValue) {
			e.logger.Debug(
				"skipping unsupported value",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("encode: %s: %w", key, err)
		}

		resp, err := e.gossipChanges(ctx, conn, req)
		if err != nil {
			// The connection may be left in an unknown state so is
			// discarded and redialed next round.
			e.pool.Evict(addr, conn)
			e.metrics.PushesTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("gossip changes: %s: %w", key, err)
		}
		if !resp.Success {
			e.logger.Warn(
				"peer rejected changes",
				zap.String("addr", addr),
				zap.String("key", key),
				zap.String("error", resp.Error),
			)
			continue
		}

		e.metrics.KeysSentTotal.Inc()
	}

	e.metrics.PushesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (e *Engine) gossipChanges(
	ctx context.Context,
	conn PeerConn,
	req *protocol.GossipChangesRequest,
) (*protocol.GossipChangesResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	return conn.GossipChanges(ctx, req)
}

// selectPeers returns up to 'fanout' peers selected uniformly at random
// without replacement.
func (e *Engine) selectPeers() []string {
	n := e.config.Fanout
	if n > len(e.peers) {
		n = len(e.peers)
	}

	selected := make([]string, 0, n)
	for _, i := range rand.Perm(len(e.peers))[:n] {
		selected = append(selected, e.peers[i])
	}
	return selected
}
