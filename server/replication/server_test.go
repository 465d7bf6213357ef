package replication

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/mergedb/client"
	"github.com/andydunstall/mergedb/pkg/crdt"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/protocol"
	"github.com/andydunstall/mergedb/pkg/status"
	"github.com/andydunstall/mergedb/pkg/websocket"
	"github.com/andydunstall/mergedb/server/store"
)

func startServer(t *testing.T) (string, *store.Store) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := store.NewStore(log.NewNopLogger())
	server := NewServer(
		NewService("node-1", s, log.NewNopLogger()),
		log.NewNopLogger(),
	)
	go func() {
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = server.Shutdown(context.Background())
	})

	return ln.Addr().String(), s
}

func TestServer_PropagateData(t *testing.T) {
	addr, _ := startServer(t)

	c, err := client.NewClient(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Health(context.Background()))

	require.NoError(t, c.CounterSet(context.Background(), "x", 10))
	require.NoError(t, c.CounterIncrement(context.Background(), "x", 5))
	require.NoError(t, c.CounterDecrement(context.Background(), "x", 3))
	v, err := c.CounterGet(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)

	require.NoError(t, c.TagAdd(context.Background(), "y", "rafting"))
	require.NoError(t, c.TagAdd(context.Background(), "y", "hiking"))
	tags, err := c.Tags(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, []string{"hiking", "rafting"}, tags)
}

func TestServer_StatusCodes(t *testing.T) {
	addr, _ := startServer(t)

	c, err := client.NewClient(addr)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.CounterSet(context.Background(), "x", 1))

	tests := []struct {
		name       string
		req        *protocol.PropagateDataRequest
		statusCode int
	}{
		{
			name: "negative value",
			req: &protocol.PropagateDataRequest{
				ValueType: "CSET",
				Key:       "z",
				Value:     protocol.EncodeInt64(-1),
			},
			statusCode: http.StatusBadRequest,
		},
		{
			name: "not found",
			req: &protocol.PropagateDataRequest{
				ValueType: "CGET",
				Key:       "unknown",
			},
			statusCode: http.StatusNotFound,
		},
		{
			name: "tag not present",
			req: &protocol.PropagateDataRequest{
				ValueType: "SREM",
				Key:       "unknown",
				Value:     []byte("hiking"),
			},
			statusCode: http.StatusNotFound,
		},
		{
			name: "type mismatch",
			req: &protocol.PropagateDataRequest{
				ValueType: "SADD",
				Key:       "x",
				Value:     []byte("hiking"),
			},
			statusCode: http.StatusConflict,
		},
		{
			name: "not supported",
			req: &protocol.PropagateDataRequest{
				ValueType: "XSET",
				Key:       "x",
			},
			statusCode: http.StatusNotImplemented,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.PropagateData(context.Background(), tt.req)
			var errorInfo *status.ErrorInfo
			require.True(t, errors.As(err, &errorInfo))
			assert.Equal(t, tt.statusCode, errorInfo.StatusCode)
			assert.NotEmpty(t, errorInfo.Message)
			assert.False(t, resp.Success)
		})
	}
}

func TestServer_GossipChanges(t *testing.T) {
	addr, s := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	conn, err := client.DialPeer(ctx, addr)
	require.NoError(t, err)
	defer conn.Close()

	counter := crdt.NewCounter()
	counter.IncrementBy("node-2", 5)
	req, err := protocol.NewGossipChangesRequest("x", counter)
	require.NoError(t, err)

	// Send multiple requests on the same connection.
	for i := 0; i != 3; i++ {
		resp, err := conn.GossipChanges(ctx, req)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, uint64(i+1), resp.ID)
	}

	tags := crdt.NewTagSet()
	tags.Add("hiking")
	req, err = protocol.NewGossipChangesRequest("x", tags)
	require.NoError(t, err)
	resp, err := conn.GossipChanges(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "type mismatch")

	v, ok := s.Read("x")
	require.True(t, ok)
	assert.Equal(t, int64(5), v.(*crdt.Counter).Value())
}

func TestServer_GossipMessageTooLarge(t *testing.T) {
	addr, s := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	conn, err := websocket.Dial(ctx, "ws://"+addr+"/v1/gossip")
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(time.Second*5)))

	counter := crdt.NewCounter()
	counter.IncrementBy("node-2", 5)
	req, err := protocol.NewGossipChangesRequest(
		strings.Repeat("x", maxGossipMessageSize+1), counter,
	)
	require.NoError(t, err)
	// The server may close the connection before the write completes.
	_ = conn.WriteMessage(req)

	var resp protocol.GossipChangesResponse
	assert.Error(t, conn.ReadMessage(&resp))
	assert.Equal(t, 0, s.Len())
}

func TestServer_DialPeerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = client.DialPeer(context.Background(), addr)
	assert.ErrorIs(t, err, client.ErrConnect)
}
