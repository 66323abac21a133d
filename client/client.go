// Package client implements the thin line-protocol client: connect, send
// one request, read one response (spec.md §4.6).
package client

import (
	"net"

	"github.com/dreamsxin/kvs"
	"github.com/dreamsxin/kvs/proto"
)

// Client talks to a single kvs server address. Per spec.md a connection
// is single-use, so each method dials its own short-lived connection
// rather than holding one open across calls.
type Client struct {
	addr string
}

// Connect validates addr is dialable and returns a Client bound to it.
func Connect(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, kvs.WrapIO(err)
	}
	_ = conn.Close()
	return &Client{addr: addr}, nil
}

// Set writes key to value.
func (c *Client) Set(key, value string) error {
	resp, err := c.roundTrip(proto.Request{Op: proto.OpSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	return responseErr(resp, "")
}

// Get returns the current value for key, or ("", false, nil) if absent.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.roundTrip(proto.Request{Op: proto.OpGet, Key: key})
	if err != nil {
		return "", false, err
	}
	if err := responseErr(resp, ""); err != nil {
		return "", false, err
	}
	if resp.Value == nil {
		return "", false, nil
	}
	return *resp.Value, true, nil
}

// Remove deletes key. It returns kvs.ErrKeyNotFound if the server reports
// the key was absent.
func (c *Client) Remove(key string) error {
	resp, err := c.roundTrip(proto.Request{Op: proto.OpRemove, Key: key})
	if err != nil {
		return err
	}
	return responseErr(resp, "Key not found")
}

func (c *Client) roundTrip(req proto.Request) (proto.Response, error) {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return proto.Response{}, kvs.WrapIO(err)
	}
	defer conn.Close()

	if err := proto.WriteRequest(conn, req); err != nil {
		return proto.Response{}, kvs.WrapSerde(err)
	}
	resp, err := proto.ReadResponse(conn)
	if err != nil {
		return proto.Response{}, kvs.WrapSerde(err)
	}
	return resp, nil
}

// responseErr maps a failed Response to a local error, recognizing
// notFoundText (when non-empty) as the server's key-not-found text and
// mapping it to kvs.ErrKeyNotFound; any other Err payload becomes a
// generic kvs.StringError.
func responseErr(resp proto.Response, notFoundText string) error {
	if resp.Ok {
		return nil
	}
	if notFoundText != "" && resp.Error == notFoundText {
		return kvs.ErrKeyNotFound
	}
	return kvs.StringError(resp.Error)
}
