package client

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andydunstall/mergedb/client"
	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/protocol"
	"github.com/andydunstall/mergedb/server/replication"
	"github.com/andydunstall/mergedb/server/store"
)

func TestParseQuery(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		tests := []struct {
			line  string
			query query
		}{
			{"CSET mykey 10", query{ValueType: "CSET", Key: "mykey", Arg: "10"}},
			{"cinc mykey -3", query{ValueType: "CINC", Key: "mykey", Arg: "-3"}},
			{"  CGET   mykey ", query{ValueType: "CGET", Key: "mykey"}},
			{"SADD activities hiking", query{ValueType: "SADD", Key: "activities", Arg: "hiking"}},
			{"SGET activities", query{ValueType: "SGET", Key: "activities"}},
		}
		for _, tt := range tests {
			q, err := parseQuery(tt.line)
			require.NoError(t, err, tt.line)
			assert.Equal(t, tt.query, *q)
		}
	})

	t.Run("incorrect format", func(t *testing.T) {
		for _, line := range []string{
			"CSET",
			"CSET mykey",
			"CGET mykey 10",
			"SADD activities",
			"SGET activities hiking",
		} {
			_, err := parseQuery(line)
			assert.ErrorIs(t, err, errIncorrectFormat, line)
		}
	})

	t.Run("not integer", func(t *testing.T) {
		_, err := parseQuery("CSET mykey abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be an integer")
	})

	t.Run("not supported", func(t *testing.T) {
		_, err := parseQuery("XSET mykey 10")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not supported")
	})
}

func TestQuery_Request(t *testing.T) {
	q := &query{ValueType: "CINC", Key: "mykey", Arg: "5"}
	assert.Equal(t, &protocol.PropagateDataRequest{
		ValueType: "CINC",
		Key:       "mykey",
		Value:     protocol.EncodeInt64(5),
	}, q.Request())

	q = &query{ValueType: "SREM", Key: "activities", Arg: "hiking"}
	assert.Equal(t, &protocol.PropagateDataRequest{
		ValueType: "SREM",
		Key:       "activities",
		Value:     []byte("hiking"),
	}, q.Request())
}

func TestExecute(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := replication.NewServer(
		replication.NewService(
			"node-1", store.NewStore(log.NewNopLogger()), log.NewNopLogger(),
		),
		log.NewNopLogger(),
	)
	go func() {
		_ = server.Serve(ln)
	}()
	defer server.Shutdown(context.Background())

	c, err := client.NewClient(ln.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	tests := []struct {
		line   string
		output string
	}{
		{"CSET x 10", "response: success=true\n"},
		{"CINC x 5", "response: success=true\n"},
		{"CDEC x 3", "response: success=true\n"},
		{"CGET x", ":: 12\n"},
		{"SADD y hiking", "response: success=true\n"},
		{"SADD y rafting", "response: success=true\n"},
		{"SGET y", ":: [hiking rafting]\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		require.NoError(t, execute(context.Background(), c, tt.line, &buf), tt.line)
		assert.Equal(t, tt.output, buf.String(), tt.line)
	}

	var buf bytes.Buffer
	require.NoError(t, execute(context.Background(), c, "HELP", &buf))
	assert.Contains(t, buf.String(), "CSET key value")

	// Rejected by the node.
	err = execute(context.Background(), c, "CGET unknown", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
