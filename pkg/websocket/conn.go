package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/andydunstall/mergedb/pkg/protocol"
)

// retryableStatusCodes contains a set of HTTP status codes that should be
// retried.
var retryableStatusCodes = map[int]struct{}{
	http.StatusRequestTimeout:      {},
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// RetryableError indicates a error is retryable.
type RetryableError struct {
	err error
}

func NewRetryableError(err error) *RetryableError {
	return &RetryableError{err}
}

func (e *RetryableError) Unwrap() error {
	return e.err
}

func (e *RetryableError) Error() string {
	return e.err.Error()
}

// IsRetryable returns whether the error, or any error it wraps, is a
// RetryableError.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// Conn sends and receives msgpack encoded messages over a WebSocket
// connection.
//
// Each message is sent as a single binary WebSocket message.
//
// Conn isn't safe for concurrent use. At most one goroutine may call
// ReadMessage and one goroutine may call WriteMessage at a time.
type Conn struct {
	wsConn *websocket.Conn
}

func New(wsConn *websocket.Conn) *Conn {
	return &Conn{
		wsConn: wsConn,
	}
}

// Dial opens a WebSocket connection to the given URL, such as
// 'ws://10.26.104.14:8001/v1/gossip'.
//
// If the dial fails due to a network error or a retryable status code the
// error is a RetryableError.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 60 * time.Second,
	}

	wsConn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			if _, ok := retryableStatusCodes[resp.StatusCode]; ok {
				return nil, NewRetryableError(err)
			}
			return nil, fmt.Errorf("%d: %w", resp.StatusCode, err)
		}
		return nil, NewRetryableError(err)
	}
	return New(wsConn), nil
}

// ReadMessage reads the next message and decodes it into v.
func (c *Conn) ReadMessage(v interface{}) error {
	mt, r, err := c.wsConn.NextReader()
	if err != nil {
		return err
	}
	if mt != websocket.BinaryMessage {
		return fmt.Errorf("unexpected message type: %d", mt)
	}
	if err := protocol.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// WriteMessage encodes v and writes it as a single message.
func (c *Conn) WriteMessage(v interface{}) error {
	b, err := protocol.Marshal(v)
	if err != nil {
		return err
	}
	return c.wsConn.WriteMessage(websocket.BinaryMessage, b)
}

func (c *Conn) Close() error {
	return c.wsConn.Close()
}

// SetReadLimit sets the maximum size in bytes of a message read from the
// peer. If a message exceeds the limit, the connection is closed and
// ReadMessage returns an error.
func (c *Conn) SetReadLimit(limit int64) {
	c.wsConn.SetReadLimit(limit)
}

func (c *Conn) SetDeadline(t time.Time) error {
	// Note don't just use wsConn.NetConn() as setting deadlines has WebSocket
	// specific logic.
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.wsConn.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.wsConn.SetWriteDeadline(t)
}
