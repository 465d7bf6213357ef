package websocket

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoMessage struct {
	ID   uint64 `codec:"id"`
	Data string `codec:"data"`
}

func startEchoServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	upgrader := &websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := New(wsConn)
		defer conn.Close()

		for {
			var m echoMessage
			if err := conn.ReadMessage(&m); err != nil {
				return
			}
			if err := conn.WriteMessage(&m); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/unavailable", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	server := &http.Server{Handler: mux}
	go func() {
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		server.Close()
	})

	return ln.Addr().String()
}

func TestConn_Echo(t *testing.T) {
	addr := startEchoServer(t)

	conn, err := Dial(context.Background(), "ws://"+addr+"/echo")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(time.Second*5)))

	for i := 0; i != 5; i++ {
		require.NoError(t, conn.WriteMessage(&echoMessage{
			ID:   uint64(i),
			Data: "foo",
		}))

		var m echoMessage
		require.NoError(t, conn.ReadMessage(&m))
		assert.Equal(t, echoMessage{ID: uint64(i), Data: "foo"}, m)
	}
}

func TestDial(t *testing.T) {
	addr := startEchoServer(t)

	t.Run("not found", func(t *testing.T) {
		_, err := Dial(context.Background(), "ws://"+addr+"/unknown")
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	})

	t.Run("unavailable", func(t *testing.T) {
		_, err := Dial(context.Background(), "ws://"+addr+"/unavailable")
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})

	t.Run("connection refused", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		closedAddr := ln.Addr().String()
		require.NoError(t, ln.Close())

		_, err = Dial(context.Background(), "ws://"+closedAddr+"/echo")
		require.Error(t, err)
		assert.True(t, IsRetryable(err))
	})
}
