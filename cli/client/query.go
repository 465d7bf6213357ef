package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/andydunstall/mergedb/client"
	"github.com/andydunstall/mergedb/pkg/protocol"
)

var errIncorrectFormat = errors.New("incorrect query format")

const helpText = `the following operations are supported:
CSET key value  (e.g., CSET mykey 10)
CGET key
CINC key amt
CDEC key amt
SADD key tag    (e.g., SADD activities hiking)
SREM key tag
SGET key`

// query is a parsed client command, such as 'CINC mykey 5'.
type query struct {
	ValueType string
	Key       string
	Arg       string
}

// parseQuery parses a whitespace separated query.
//
// Counter arguments must be integers, which is checked locally before
// sending the request.
func parseQuery(line string) (*query, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil, errIncorrectFormat
	}

	q := &query{
		ValueType: strings.ToUpper(parts[0]),
		Key:       parts[1],
	}
	switch q.ValueType {
	case protocol.ValueTypeCounterGet, protocol.ValueTypeTagGet:
		if len(parts) != 2 {
			return nil, errIncorrectFormat
		}
	case protocol.ValueTypeCounterSet,
		protocol.ValueTypeCounterIncrement,
		protocol.ValueTypeCounterDecrement:
		if len(parts) != 3 {
			return nil, errIncorrectFormat
		}
		if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
			return nil, fmt.Errorf("value must be an integer")
		}
		q.Arg = parts[2]
	case protocol.ValueTypeTagAdd, protocol.ValueTypeTagRemove:
		if len(parts) != 3 {
			return nil, errIncorrectFormat
		}
		q.Arg = parts[2]
	default:
		return nil, fmt.Errorf("not supported: %s", parts[0])
	}
	return q, nil
}

func (q *query) Request() *protocol.PropagateDataRequest {
	req := &protocol.PropagateDataRequest{
		ValueType: q.ValueType,
		Key:       q.Key,
	}
	switch q.ValueType {
	case protocol.ValueTypeCounterSet,
		protocol.ValueTypeCounterIncrement,
		protocol.ValueTypeCounterDecrement:
		// Already validated by parseQuery.
		n, _ := strconv.ParseInt(q.Arg, 10, 64)
		req.Value = protocol.EncodeInt64(n)
	case protocol.ValueTypeTagAdd, protocol.ValueTypeTagRemove:
		req.Value = []byte(q.Arg)
	}
	return req
}

// execute runs the query against the node and writes the result to w.
func execute(ctx context.Context, c *client.Client, line string, w io.Writer) error {
	if strings.EqualFold(strings.TrimSpace(line), "HELP") {
		fmt.Fprintln(w, helpText)
		return nil
	}

	q, err := parseQuery(line)
	if err != nil {
		return err
	}

	resp, err := c.PropagateData(ctx, q.Request())
	if err != nil {
		return err
	}

	switch q.ValueType {
	case protocol.ValueTypeCounterGet:
		v, err := protocol.DecodeInt64(resp.Response)
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Fprintf(w, ":: %d\n", v)
	case protocol.ValueTypeTagGet:
		var tags []string
		if err := protocol.Unmarshal(resp.Response, &tags); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		fmt.Fprintf(w, ":: %v\n", tags)
	default:
		fmt.Fprintf(w, "response: success=%t\n", resp.Success)
	}
	return nil
}
