package gossip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/protocol"
	"github.com/andydunstall/mergedb/pkg/websocket"
)

// PeerConn is a connection to a peer used to push changes.
type PeerConn interface {
	GossipChanges(
		ctx context.Context,
		req *protocol.GossipChangesRequest,
	) (*protocol.GossipChangesResponse, error)
	Close() error
}

// Dialer opens a connection to the peer with the given address.
type Dialer func(ctx context.Context, addr string) (PeerConn, error)

// pool caches a connection to each peer.
//
// Connections are opened lazily on first use and reused across rounds. A
// failed dial isn't cached, so the peer is retried on the next Get.
type pool struct {
	conns map[string]PeerConn

	// mu protects the above fields.
	mu sync.Mutex

	// dials collapses concurrent dials to the same peer.
	dials singleflight.Group

	dialer  Dialer
	timeout time.Duration

	metrics *Metrics

	logger log.Logger
}

func newPool(
	dialer Dialer,
	timeout time.Duration,
	metrics *Metrics,
	logger log.Logger,
) *pool {
	return &pool{
		conns:   make(map[string]PeerConn),
		dialer:  dialer,
		timeout: timeout,
		metrics: metrics,
		logger:  logger.WithSubsystem("gossip.pool"),
	}
}

// Get returns the pooled connection to the peer with the given address,
// dialing a new connection if there isn't one.
func (p *pool) Get(ctx context.Context, addr string) (PeerConn, error) {
	if conn, ok := p.lookup(addr); ok {
		return conn, nil
	}

	v, err, _ := p.dials.Do(addr, func() (interface{}, error) {
		// Another caller may have dialed while we were waiting.
		if conn, ok := p.lookup(addr); ok {
			return conn, nil
		}

		dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		conn, err := p.dialer(dialCtx, addr)
		if err != nil {
			// A non-retryable error means the peer was reached but rejected
			// the connection, such as the address isn't a node.
			if websocket.IsRetryable(err) {
				p.metrics.DialsTotal.WithLabelValues("error").Inc()
			} else {
				p.metrics.DialsTotal.WithLabelValues("rejected").Inc()
			}
			return nil, err
		}
		p.metrics.DialsTotal.WithLabelValues("ok").Inc()

		p.logger.Debug("connected to peer", zap.String("addr", addr))

		p.mu.Lock()
		p.conns[addr] = conn
		p.metrics.PoolConnections.Set(float64(len(p.conns)))
		p.mu.Unlock()

		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %s: %w", addr, err)
	}
	return v.(PeerConn), nil
}

// Evict removes and closes the given connection to the peer. If the pooled
// connection has already been replaced the new connection is kept.
func (p *pool) Evict(addr string, conn PeerConn) {
	p.mu.Lock()
	if pooled, ok := p.conns[addr]; ok && pooled == conn {
		delete(p.conns, addr)
		p.metrics.PoolConnections.Set(float64(len(p.conns)))
	}
	p.mu.Unlock()

	if err := conn.Close(); err != nil {
		p.logger.Debug(
			"failed to close connection",
			zap.String("addr", addr),
			zap.Error(err),
		)
	}

	p.logger.Debug("evicted peer connection", zap.String("addr", addr))
}

// Connected returns whether there is a pooled connection to the peer.
func (p *pool) Connected(addr string) bool {
	_, ok := p.lookup(addr)
	return ok
}

// Close closes all pooled connections.
func (p *pool) Close() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]PeerConn)
	p.metrics.PoolConnections.Set(0)
	p.mu.Unlock()

	var errs []error
	for addr, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close: %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func (p *pool) lookup(addr string) (PeerConn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[addr]
	return conn, ok
}
