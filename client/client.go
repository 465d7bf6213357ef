// Package client provides clients for the node RPC API.
//
// Client issues PropagateData requests to read and write keys, and PeerConn
// pushes key state to a peer over the gossip WebSocket endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	fspath "path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/andydunstall/mergedb/pkg/log"
	"github.com/andydunstall/mergedb/pkg/protocol"
	"github.com/andydunstall/mergedb/pkg/status"
)

// Client sends requests to a node.
//
// A request the node rejects returns a *status.ErrorInfo containing the
// HTTP status code and error message.
type Client struct {
	httpClient *http.Client

	url *url.URL

	logger log.Logger
}

// NewClient creates a client for the node with the given address, such as
// 'localhost:8001' or 'http://10.26.104.14:8001'.
func NewClient(addr string, opts ...Option) (*Client, error) {
	options := options{
		timeout: time.Second * 15,
		logger:  log.NewNopLogger(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid addr: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid addr: missing host")
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: options.timeout,
		},
		url:    u,
		logger: options.logger.WithSubsystem("client"),
	}, nil
}

// PropagateData sends the request to the node.
//
// If the node rejects the request, returns the node's response along with a
// *status.ErrorInfo.
func (c *Client) PropagateData(
	ctx context.Context,
	req *protocol.PropagateDataRequest,
) (*protocol.PropagateDataResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint("/v1/propagate"), bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	var resp protocol.PropagateDataResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %d: %w", httpResp.StatusCode, err)
	}

	c.logger.Debug(
		"propagate data",
		zap.String("value-type", req.ValueType),
		zap.String("key", req.Key),
		zap.Int("status", httpResp.StatusCode),
	)

	if httpResp.StatusCode != http.StatusOK {
		return &resp, &status.ErrorInfo{
			StatusCode: httpResp.StatusCode,
			Message:    resp.Error,
		}
	}
	return &resp, nil
}

// Health checks whether the node is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.endpoint("/v1/health"), nil,
	)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request: bad status: %d", resp.StatusCode)
	}
	return nil
}

// CounterSet replaces the value of the key with a counter set to v.
func (c *Client) CounterSet(ctx context.Context, key string, v int64) error {
	_, err := c.PropagateData(ctx, &protocol.PropagateDataRequest{
		ValueType: protocol.ValueTypeCounterSet,
		Key:       key,
		Value:     protocol.EncodeInt64(v),
	})
	return err
}

// CounterGet returns the value of the counter with the given key.
func (c *Client) CounterGet(ctx context.Context, key string) (int64, error) {
	resp, err := c.PropagateData(ctx, &protocol.PropagateDataRequest{
		ValueType: protocol.ValueTypeCounterGet,
		Key:       key,
	})
	if err != nil {
		return 0, err
	}
	v, err := protocol.DecodeInt64(resp.Response)
	if err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return v, nil
}

func (c *Client) CounterIncrement(ctx context.Context, key string, n int64) error {
	_, err := c.PropagateData(ctx, &protocol.PropagateDataRequest{
		ValueType: protocol.ValueTypeCounterIncrement,
		Key:       key,
		Value:     protocol.EncodeInt64(n),
	})
	return err
}

func (c *Client) CounterDecrement(ctx context.Context, key string, n int64) error {
	_, err := c.PropagateData(ctx, &protocol.PropagateDataRequest{
		ValueType: protocol.ValueTypeCounterDecrement,
		Key:       key,
		Value:     protocol.EncodeInt64(n),
	})
	return err
}

func (c *Client) TagAdd(ctx context.Context, key string, tag string) error {
	_, err := c.PropagateData(ctx, &protocol.PropagateDataRequest{
		ValueType: protocol.ValueTypeTagAdd,
		Key:       key,
		Value:     []byte(tag),
	})
	return err
}

func (c *Client) TagRemove(ctx context.Context, key string, tag string) error {
	_, err := c.PropagateData(ctx, &protocol.PropagateDataRequest{
		ValueType: protocol.ValueTypeTagRemove,
		Key:       key,
		Value:     []byte(tag),
	})
	return err
}

// Tags returns the sorted tags of the tag set with the given key.
func (c *Client) Tags(ctx context.Context, key string) ([]string, error) {
	resp, err := c.PropagateData(ctx, &protocol.PropagateDataRequest{
		ValueType: protocol.ValueTypeTagGet,
		Key:       key,
	})
	if err != nil {
		return nil, err
	}
	var tags []string
	if err := protocol.Unmarshal(resp.Response, &tags); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return tags, nil
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) endpoint(path string) string {
	u := new(url.URL)
	*u = *c.url
	u.Path = fspath.Join(u.Path, path)
	return u.String()
}
