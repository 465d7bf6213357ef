package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/andydunstall/mergedb/pkg/protocol"
	"github.com/andydunstall/mergedb/pkg/websocket"
)

var (
	// ErrConnect is returned when a connection to a peer can't be opened.
	ErrConnect = errors.New("connect")
)

// PeerConn is a connection to a peer's gossip endpoint.
//
// Requests are serialised, so there is at most one outstanding request on
// the connection. PeerConn is safe for concurrent use.
type PeerConn struct {
	conn *websocket.Conn

	nextID uint64

	// mu serialises requests and protects nextID.
	mu sync.Mutex

	closed *atomic.Bool
}

// DialPeer opens a connection to the peer with the given RPC address, such
// as '10.26.104.14:8001'.
func DialPeer(ctx context.Context, addr string) (*PeerConn, error) {
	conn, err := websocket.Dial(ctx, "ws://"+addr+"/v1/gossip")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}
	return &PeerConn{
		conn:   conn,
		closed: atomic.NewBool(false),
	}, nil
}

// GossipChanges pushes the state of a key to the peer and waits for the
// peer to acknowledge it.
//
// The context deadline applies to both sending the request and receiving
// the response. If an error is returned the connection should be closed.
func (c *PeerConn) GossipChanges(
	ctx context.Context,
	req *protocol.GossipChangesRequest,
) (*protocol.GossipChangesResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, fmt.Errorf("closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.nextID++
	id := c.nextID

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	// Clear the deadline as the connection is reused.
	defer c.conn.SetDeadline(time.Time{}) // nolint

	r := *req
	r.ID = id
	if err := c.conn.WriteMessage(&r); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	var resp protocol.GossipChangesResponse
	if err := c.conn.ReadMessage(&resp); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("unexpected response id: %d != %d", resp.ID, id)
	}
	return &resp, nil
}

func (c *PeerConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
